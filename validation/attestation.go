package validation

import (
	"fmt"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/auctionapi/parsing"
)

// validateNitroAttestation performs the checks shared by every Nitro document:
// PCRs against knownPCRs, certificate chain at the attestation timestamp, and
// the COSE signature. It returns the document's user data for the caller.
func validateNitroAttestation(coseBytes auctionapi.ReceiptCOSE, knownPCRs []PCRSet) (*BaseValidationResult, []byte, error) {
	attestationDoc, userData, err := parsing.ParseAttestationDoc(coseBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	if len(knownPCRs) == 0 {
		return nil, nil, fmt.Errorf("no known PCR sets configured")
	}

	result := &BaseValidationResult{
		Attested:          true,
		ValidationDetails: []string{},
	}

	// Validate PCRs
	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, knownPCRs)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.detail("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash)
		result.detail("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash)
		result.detail("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash)
	} else {
		result.detail("PCR measurements valid")
		result.detail("Matched PCR set: #%d (commit: %s)", matchedSet, knownPCRs[matchedSet].CommitHash)
	}

	// Validate certificate chain at the attestation timestamp
	switch {
	case attestationDoc.Certificate == "":
		result.detail("Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.detail("Missing CA bundle")
	default:
		err = ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp)
		if err != nil {
			result.detail("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			result.detail("Certificate chain verified")
		}
	}

	// Verify COSE signature
	if attestationDoc.Certificate == "" {
		result.detail("COSE signature not verified: no certificate")
	} else if err := VerifyNitroSignature(coseBytes, attestationDoc.Certificate); err != nil {
		result.detail("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		result.detail("COSE signature verified")
	}

	return result, userData, nil
}
