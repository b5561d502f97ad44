package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/auctionapi/parsing"
)

// VerifyNitroSignature verifies the ES384 signature of a Nitro attestation
// document against the base64 DER signing certificate it carries.
func VerifyNitroSignature(coseBytes auctionapi.ReceiptCOSE, certB64 string) error {
	cert, err := decodeCertificate(certB64)
	if err != nil {
		return err
	}

	// Nitro signs with ES384
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	// Nitro returns untagged COSE_Sign1, which go-cose's Sign1Message rejects,
	// so the Sig_structure is rebuilt from the parts.
	parts, err := parsing.SplitSign1(coseBytes)
	if err != nil {
		return err
	}

	// Sig_structure for COSE_Sign1: ["Signature1", protected, external_aad, payload]
	sigStructureBytes, err := cbor.Marshal([]any{
		"Signature1",
		parts.Protected,
		[]byte{},
		parts.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal Sig_structure: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructureBytes, parts.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}

	return nil
}

// VerifyKeySignature verifies a key-signed receipt (untagged COSE_Sign1, ES256)
// and returns its payload and key id header.
func VerifyKeySignature(coseBytes auctionapi.ReceiptCOSE, pub *ecdsa.PublicKey) ([]byte, string, error) {
	var msg cose.UntaggedSign1Message
	if err := msg.UnmarshalCBOR(coseBytes); err != nil {
		return nil, "", fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, "", fmt.Errorf("read algorithm header: %w", err)
	}
	if alg != cose.AlgorithmES256 {
		return nil, "", fmt.Errorf("unexpected algorithm %v", alg)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, "", fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, "", fmt.Errorf("COSE signature verification failed: %w", err)
	}

	var keyID string
	if kid, ok := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte); ok {
		keyID = string(kid)
	}
	return msg.Payload, keyID, nil
}
