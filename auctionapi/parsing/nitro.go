package parsing

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/openbid/auctionapi"
)

// NitroAttestationDocument represents the raw CBOR structure from AWS Nitro Enclaves
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ParseAttestationDoc decodes a Nitro attestation (COSE_Sign1 around a CBOR
// document) and returns the document together with its raw user data, which for
// settlement receipts is the CBOR receipt payload.
func ParseAttestationDoc(coseBytes []byte) (auctionapi.AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return auctionapi.AttestationDoc{}, nil, err
	}

	var raw NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return auctionapi.AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	doc := auctionapi.AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            ExtractPCRs(raw.PCRs),
		CABundle:        EncodeCertificateBundle(raw.CABundle),
		Nonce:           string(raw.Nonce),
	}
	if len(raw.Certificate) > 0 {
		doc.Certificate = base64.StdEncoding.EncodeToString(raw.Certificate)
	}
	if len(raw.PublicKey) > 0 {
		doc.PublicKey = base64.StdEncoding.EncodeToString(raw.PublicKey)
	}
	return doc, raw.UserData, nil
}

// FormatPCR formats PCR bytes as hex string
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// EncodeCertificateBundle converts certificate bundle to base64 strings
func EncodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}

// ExtractPCRs extracts and formats PCR values from the raw CBOR PCR map
func ExtractPCRs(rawPCRs map[uint64][]byte) auctionapi.PCRs {
	return auctionapi.PCRs{
		ImageFileHash:   FormatPCR(rawPCRs[0]),
		KernelHash:      FormatPCR(rawPCRs[1]),
		ApplicationHash: FormatPCR(rawPCRs[2]),
		InstanceIDHash:  FormatPCR(rawPCRs[4]),
		SigningCertHash: FormatPCR(rawPCRs[8]),
	}
}
