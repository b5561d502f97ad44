// Package receipt issues signed settlement receipts.
package receipt

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openbid/auctionapi"
)

// Signer turns a receipt payload into signed COSE bytes.
type Signer interface {
	Kind() auctionapi.ReceiptSigner
	KeyID() string
	Sign(payload []byte) (auctionapi.ReceiptCOSE, error)
}

// KeySigner signs receipts as untagged COSE_Sign1 messages with an ES256 key.
type KeySigner struct {
	key    *ecdsa.PrivateKey
	keyID  string
	signer cose.Signer
}

func NewKeySigner(key *ecdsa.PrivateKey) (*KeySigner, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}
	keyID, err := KeyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeySigner{key: key, keyID: keyID, signer: signer}, nil
}

func (*KeySigner) Kind() auctionapi.ReceiptSigner { return auctionapi.SignerKey }

func (k *KeySigner) KeyID() string { return k.keyID }

func (k *KeySigner) PublicKey() *ecdsa.PublicKey { return &k.key.PublicKey }

func (k *KeySigner) PublicKeyPEM() (string, error) { return PublicKeyPEM(&k.key.PublicKey) }

func (k *KeySigner) Sign(payload []byte) (auctionapi.ReceiptCOSE, error) {
	msg := cose.UntaggedSign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
			},
			Unprotected: cose.UnprotectedHeader{
				cose.HeaderLabelKeyID: []byte(k.keyID),
			},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, nil, k.signer); err != nil {
		return nil, fmt.Errorf("COSE sign failed: %w", err)
	}
	data, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal COSE message: %w", err)
	}
	return auctionapi.ReceiptCOSE(data), nil
}

// Attester interface for dependency injection and testing
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// OpenNSM returns the Nitro Secure Module handle, or an error outside an enclave.
func OpenNSM() (Attester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// NitroSigner embeds the receipt payload as user data in an NSM attestation
// document. The document is signed by the Nitro hypervisor's certificate chain.
type NitroSigner struct {
	attester Attester
}

func NewNitroSigner(attester Attester) *NitroSigner {
	return &NitroSigner{attester: attester}
}

func (*NitroSigner) Kind() auctionapi.ReceiptSigner { return auctionapi.SignerNitro }

func (*NitroSigner) KeyID() string { return "" }

func (n *NitroSigner) Sign(payload []byte) (auctionapi.ReceiptCOSE, error) {
	return attest(n.attester, payload)
}

func attest(attester Attester, userData []byte) (auctionapi.ReceiptCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}
	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(uuid.NewString()),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return auctionapi.ReceiptCOSE(attestationCBOR), nil
}

// AttestKey produces a Nitro attestation binding the receipt key to the enclave,
// so verifiers can trust key-signed receipts without a Nitro document per receipt.
func AttestKey(attester Attester, k *KeySigner) (auctionapi.ReceiptCOSE, error) {
	publicKeyPEM, err := k.PublicKeyPEM()
	if err != nil {
		return nil, err
	}
	userData, err := auctionapi.Marshal(&auctionapi.KeyAttestationUserData{
		KeyAlgorithm: "ECDSA-P256",
		PublicKey:    publicKeyPEM,
		KeyID:        k.KeyID(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key user data: %w", err)
	}
	return attest(attester, userData)
}
