package validation

import "fmt"

// BaseValidationResult contains common validation results for all receipt kinds.
// Attested is false for key-signed receipts, which carry no Nitro document; the
// PCR and certificate checks then do not apply.
type BaseValidationResult struct {
	Attested          bool
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

func (r *BaseValidationResult) attestationValid() bool {
	if !r.Attested {
		return r.SignatureValid
	}
	return r.PCRsValid && r.CertificateValid && r.SignatureValid
}

func (r *BaseValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// KeyValidationResult contains validation results specific to key attestations
type KeyValidationResult struct {
	BaseValidationResult
	PublicKeyMatch bool
	KeyIDMatch     bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.attestationValid() && r.PublicKeyMatch && r.KeyIDMatch
}

// ReceiptValidationResult contains validation results for a settlement receipt
type ReceiptValidationResult struct {
	BaseValidationResult
	AuctionIDValid  bool
	BidHashValid    bool
	FinalPriceValid bool
	WinnerValid     bool
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.attestationValid() && r.AuctionIDValid && r.BidHashValid && r.FinalPriceValid && r.WinnerValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // openbid commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
