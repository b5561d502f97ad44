// Package receipttest provides a fake Nitro Secure Module for tests.
package receipttest

import (
	"encoding/hex"
	"fmt"
	"sync"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
)

// Known PCR values reported by MockAttester.
const (
	PCR0 = "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"
	PCR1 = "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"
	PCR2 = "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"
)

// MockAttester implements the Attest method for testing. Documents have the
// Nitro shape but carry a placeholder certificate and signature.
type MockAttester struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)

	mu    sync.Mutex
	calls []enclave.AttestationOptions
}

// NewMockAttester returns an attester producing Nitro-shaped documents.
func NewMockAttester() *MockAttester {
	return &MockAttester{AttestFunc: nitroShapedDocument}
}

func (m *MockAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, options)
	m.mu.Unlock()

	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// Calls returns the options of every Attest call so far.
func (m *MockAttester) Calls() []enclave.AttestationOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]enclave.AttestationOptions(nil), m.calls...)
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", s))
	}
	return b
}

func nitroShapedDocument(options enclave.AttestationOptions) ([]byte, error) {
	nestedDoc := map[string]any{
		"module_id": "test-enclave-12345",
		"digest":    "SHA384",
		"timestamp": uint64(1773489600000),
		"pcrs": map[uint64][]byte{
			0: mustDecodeHex(PCR0),
			1: mustDecodeHex(PCR1),
			2: mustDecodeHex(PCR2),
		},
		"certificate": []byte("test-certificate-data"),
		"cabundle":    [][]byte{[]byte("test-ca-cert")},
		"public_key":  []byte("test-public-key-data"),
		"user_data":   options.UserData,
		"nonce":       options.Nonce,
	}

	nestedBytes, err := cbor.Marshal(nestedDoc)
	if err != nil {
		return nil, err
	}

	// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
	return cbor.Marshal([]any{
		[]byte{0x01, 0x02, 0x03},
		map[string]any{},
		nestedBytes,
		[]byte{0x04, 0x05, 0x06},
	})
}
