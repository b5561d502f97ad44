// Package parsing decodes COSE_Sign1 envelopes and Nitro attestation documents.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cose_sign1 tag; Nitro emits the untagged form, go-cose may emit either.
const sign1Tag = 18

// Sign1Parts are the elements of a COSE_Sign1 array:
// [protected, unprotected, payload, signature].
type Sign1Parts struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// SplitSign1 decodes a tagged or untagged COSE_Sign1 message without verifying it.
func SplitSign1(coseBytes []byte) (*Sign1Parts, error) {
	var decoded any
	if err := cbor.Unmarshal(coseBytes, &decoded); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if tag, ok := decoded.(cbor.Tag); ok {
		if tag.Number != sign1Tag {
			return nil, fmt.Errorf("unexpected CBOR tag %d", tag.Number)
		}
		decoded = tag.Content
	}

	elems, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: not an array")
	}
	if len(elems) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(elems))
	}

	protected, ok := elems[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid protected headers")
	}
	payload, ok := elems[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	signature, ok := elems[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid signature")
	}
	return &Sign1Parts{Protected: protected, Payload: payload, Signature: signature}, nil
}

// ExtractCOSEPayload returns the payload of a COSE_Sign1 message.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	parts, err := SplitSign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return parts.Payload, nil
}
