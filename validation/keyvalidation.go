package validation

import (
	"fmt"
	"strings"

	"github.com/cloudx-io/openbid/auctionapi"
)

// ValidateKeyAttestation validates the Nitro attestation that binds a receipt
// signing key to the enclave image.
//
// Parameters:
//   - resp: the server's receipt_key response
//   - expectedPublicKey: PEM-encoded public key the caller intends to trust
//   - knownPCRs: accepted enclave measurements
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateKeyAttestation(resp *auctionapi.ReceiptKeyResponse, expectedPublicKey string, knownPCRs []PCRSet) (*KeyValidationResult, error) {
	if resp.KeyAttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing key_attestation_cose_base64 in key response")
	}
	coseBytes, err := resp.KeyAttestationCOSEBase64.Decode()
	if err != nil {
		return nil, err
	}

	baseResult, userDataBytes, err := validateNitroAttestation(coseBytes, knownPCRs)
	if err != nil {
		return nil, err
	}

	result := &KeyValidationResult{
		BaseValidationResult: *baseResult,
	}

	var userData auctionapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := auctionapi.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	if userData.PublicKey == "" {
		result.detail("Public key missing from attestation")
	} else if strings.TrimSpace(expectedPublicKey) == strings.TrimSpace(userData.PublicKey) {
		// PEM encoders disagree on trailing newlines
		result.PublicKeyMatch = true
		result.detail("Public key matches attestation")
	} else {
		result.detail("Public key mismatch: provided key does not match attested key")
	}

	if userData.KeyID != "" && userData.KeyID == resp.KeyID {
		result.KeyIDMatch = true
		result.detail("Key id matches attestation: %s", userData.KeyID)
	} else {
		result.detail("Key id mismatch: response has %q, attestation has %q", resp.KeyID, userData.KeyID)
	}

	return result, nil
}
