package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
	"github.com/cloudx-io/openbid/receipt"
)

// ReceiptValidationInput contains all inputs needed to check a settlement receipt
// from one bidder's point of view.
type ReceiptValidationInput struct {
	Receipt auctionapi.SettlementReceipt

	// PublicKeyPEM verifies key-signed receipts. Ignored for Nitro receipts.
	PublicKeyPEM string
	// KnownPCRs are the accepted enclave measurements for Nitro receipts.
	KnownPCRs []PCRSet

	AuctionID  string
	BidID      string
	BidAmount  decimal.Decimal
	FinalPrice *decimal.Decimal // nil = no sale expected
	IsWinner   bool
}

// ValidateSettlementReceipt validates a signed settlement receipt and verifies:
// - The receipt covers the expected auction
// - The bid was included in the settlement
// - The final price matches
// - Winner/loser determination
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing key)
func ValidateSettlementReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	coseBytes, err := input.Receipt.COSEBase64.Decode()
	if err != nil {
		return nil, err
	}

	var (
		base    *BaseValidationResult
		payload []byte
	)
	switch input.Receipt.Signer {
	case auctionapi.SignerNitro:
		base, payload, err = validateNitroAttestation(coseBytes, input.KnownPCRs)
		if err != nil {
			return nil, err
		}
	case auctionapi.SignerKey:
		base, payload, err = validateKeySigned(coseBytes, input.PublicKeyPEM, input.Receipt.KeyID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown receipt signer %q", input.Receipt.Signer)
	}

	result := &ReceiptValidationResult{BaseValidationResult: *base}

	if len(payload) == 0 {
		result.detail("Receipt payload missing")
		return result, nil
	}
	p, err := auctionapi.DecodeReceiptPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt payload: %w", err)
	}

	result.AuctionIDValid = validateAuctionID(input, p, result)
	result.BidHashValid = validateBidHash(input, p, result)
	result.FinalPriceValid = validateFinalPrice(input, p, result)
	result.WinnerValid = validateWinner(input, p, result)

	return result, nil
}

func validateKeySigned(coseBytes auctionapi.ReceiptCOSE, publicKeyPEM, expectedKeyID string) (*BaseValidationResult, []byte, error) {
	if publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("public key is required for key-signed receipts")
	}
	pub, err := receipt.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, nil, err
	}

	result := &BaseValidationResult{ValidationDetails: []string{}}
	payload, keyID, err := VerifyKeySignature(coseBytes, pub)
	if err != nil {
		result.detail("COSE signature verification failed: %v", err)
		return result, nil, nil
	}
	if expectedKeyID != "" && keyID != expectedKeyID {
		result.detail("Key id mismatch: receipt says %s, signature header has %s", expectedKeyID, keyID)
		return result, nil, nil
	}
	result.SignatureValid = true
	result.detail("COSE signature verified (key %s)", keyID)
	return result, payload, nil
}

func validateAuctionID(input *ReceiptValidationInput, p *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.AuctionID == p.AuctionID {
		result.detail("Auction id matches: %s", p.AuctionID)
		return true
	}
	result.detail("Auction id mismatch: expected %s, receipt has %s", input.AuctionID, p.AuctionID)
	return false
}

func validateBidHash(input *ReceiptValidationInput, p *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if p.BidHashNonce == "" {
		result.detail("Bid hash nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeBidHash(input.BidID, input.BidAmount, p.BidHashNonce)
	for _, attestedHash := range p.BidHashes {
		if computedHash == attestedHash {
			result.detail("Bid hash found in receipt: %s", computedHash)
			return true
		}
	}

	result.detail("Bid hash NOT found in receipt. Computed: %s", computedHash)
	result.detail("Total hashes in receipt: %d", len(p.BidHashes))
	return false
}

func validateFinalPrice(input *ReceiptValidationInput, p *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	sold := p.WinningBidID != ""
	if input.FinalPrice == nil {
		if !sold {
			result.detail("Final price validation passed: no sale expected and none in receipt (%s)", p.Outcome)
			return true
		}
		result.detail("Final price mismatch: expected no sale, but receipt sold at %s", p.FinalPrice)
		return false
	}

	if !sold {
		result.detail("Final price mismatch: expected sale at %s, but receipt outcome is %s", core.FormatMoney(*input.FinalPrice), p.Outcome)
		return false
	}

	attested, err := decimal.NewFromString(p.FinalPrice)
	if err != nil {
		result.detail("Final price in receipt is malformed: %q", p.FinalPrice)
		return false
	}
	if attested.Equal(*input.FinalPrice) {
		result.detail("Final price validation passed: %s", core.FormatMoney(attested))
		return true
	}
	result.detail("Final price mismatch: expected %s, receipt has %s", core.FormatMoney(*input.FinalPrice), p.FinalPrice)
	return false
}

func validateWinner(input *ReceiptValidationInput, p *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	actuallyWon := p.WinningBidID != "" && p.WinningBidID == input.BidID

	if input.IsWinner == actuallyWon {
		if actuallyWon {
			result.detail("Winner validation passed: bid won as expected (outcome: %s)", p.Outcome)
		} else {
			result.detail("Winner validation passed: bid lost as expected")
		}
		return true
	}

	if input.IsWinner {
		result.detail("Winner validation failed: expected to win, but did not win")
	} else {
		result.detail("Winner validation failed: expected to lose, but won at %s", p.FinalPrice)
	}
	return false
}
