package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
	"github.com/cloudx-io/openbid/receipt"
	"github.com/cloudx-io/openbid/receipt/receipttest"
)

var settledAt = time.Date(2026, 3, 14, 12, 3, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func knownPCRs() []PCRSet {
	return []PCRSet{{PCR0: receipttest.PCR0, PCR1: receipttest.PCR1, PCR2: receipttest.PCR2, CommitHash: "abc123"}}
}

// settled returns a sold auction: alice 1100, bob 1200 (retracted), carol 1300 wins.
func settled() (*core.Auction, core.Settlement, []core.Bid) {
	bids := []core.Bid{
		{ID: "bid-1", AuctionID: "auction-1", BidderID: "alice", Amount: dec("1100"), Sequence: 1},
		{ID: "bid-2", AuctionID: "auction-1", BidderID: "bob", Amount: dec("1200"), Sequence: 2, IsRetracted: true},
		{ID: "bid-3", AuctionID: "auction-1", BidderID: "carol", Amount: dec("1300"), Sequence: 3, IsWinning: true},
	}
	a := &core.Auction{ID: "auction-1", State: core.StateSold, WinningBidID: "bid-3", SettledAt: &settledAt}
	s := core.Settlement{State: core.StateSold, Outcome: core.OutcomeSold, WinningBid: &bids[2], FinalPrice: dec("1300"), ReserveMet: true}
	return a, s, bids
}

func keySignedReceipt(t *testing.T) (*auctionapi.SettlementReceipt, string) {
	t.Helper()
	key, err := receipt.GenerateKey()
	assert.Nil(t, err)
	signer, err := receipt.NewKeySigner(key)
	assert.Nil(t, err)
	pemKey, err := signer.PublicKeyPEM()
	assert.Nil(t, err)

	a, s, bids := settled()
	r, err := receipt.NewIssuer(signer, nil).Issue(context.Background(), a, s, bids)
	assert.Nil(t, err)
	return r, pemKey
}

func TestValidateSettlementReceipt_KeySignedWinner(t *testing.T) {
	r, pemKey := keySignedReceipt(t)
	price := dec("1300")

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-1",
		BidID:        "bid-3",
		BidAmount:    dec("1300.00"),
		FinalPrice:   &price,
		IsWinner:     true,
	})
	assert.Nil(t, err)

	check.True(t, !result.Attested)
	check.True(t, result.SignatureValid)
	check.True(t, result.AuctionIDValid)
	check.True(t, result.BidHashValid)
	check.True(t, result.FinalPriceValid)
	check.True(t, result.WinnerValid)
	check.True(t, result.IsValid())
}

func TestValidateSettlementReceipt_KeySignedLoser(t *testing.T) {
	r, pemKey := keySignedReceipt(t)
	price := dec("1300")

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-1",
		BidID:        "bid-1",
		BidAmount:    dec("1100"),
		FinalPrice:   &price,
	})
	assert.Nil(t, err)
	check.True(t, result.IsValid())
}

func TestValidateSettlementReceipt_RetractedBidNotIncluded(t *testing.T) {
	r, pemKey := keySignedReceipt(t)
	price := dec("1300")

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-1",
		BidID:        "bid-2",
		BidAmount:    dec("1200"),
		FinalPrice:   &price,
	})
	assert.Nil(t, err)
	check.True(t, !result.BidHashValid)
	check.True(t, !result.IsValid())
}

func TestValidateSettlementReceipt_Mismatches(t *testing.T) {
	r, pemKey := keySignedReceipt(t)
	wrongPrice := dec("1250")

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-2",
		BidID:        "bid-1",
		BidAmount:    dec("1100"),
		FinalPrice:   &wrongPrice,
		IsWinner:     true,
	})
	assert.Nil(t, err)
	check.True(t, result.SignatureValid)
	check.True(t, !result.AuctionIDValid)
	check.True(t, result.BidHashValid)
	check.True(t, !result.FinalPriceValid)
	check.True(t, !result.WinnerValid)

	// Expecting no sale when there was one
	result, err = ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-1",
		BidID:        "bid-1",
		BidAmount:    dec("1100"),
	})
	assert.Nil(t, err)
	check.True(t, !result.FinalPriceValid)
}

func TestValidateSettlementReceipt_WrongKey(t *testing.T) {
	r, _ := keySignedReceipt(t)
	other, err := receipt.GenerateKey()
	assert.Nil(t, err)
	otherPEM, err := receipt.PublicKeyPEM(&other.PublicKey)
	assert.Nil(t, err)

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: otherPEM,
		AuctionID:    "auction-1",
		BidID:        "bid-3",
		BidAmount:    dec("1300"),
	})
	assert.Nil(t, err)
	check.True(t, !result.SignatureValid)
	check.True(t, !result.IsValid())
}

func TestValidateSettlementReceipt_MissingKey(t *testing.T) {
	r, _ := keySignedReceipt(t)

	_, err := ValidateSettlementReceipt(&ReceiptValidationInput{Receipt: *r})
	check.NotNil(t, err)
}

func TestValidateSettlementReceipt_NoBids(t *testing.T) {
	key, err := receipt.GenerateKey()
	assert.Nil(t, err)
	signer, err := receipt.NewKeySigner(key)
	assert.Nil(t, err)
	pemKey, err := signer.PublicKeyPEM()
	assert.Nil(t, err)

	a := &core.Auction{ID: "auction-9", State: core.StateNoBids, SettledAt: &settledAt}
	r, err := receipt.NewIssuer(signer, nil).Issue(context.Background(), a, core.Resolve(nil, decimal.NullDecimal{}), nil)
	assert.Nil(t, err)

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:      *r,
		PublicKeyPEM: pemKey,
		AuctionID:    "auction-9",
		BidID:        "bid-x",
		BidAmount:    dec("1"),
	})
	assert.Nil(t, err)
	check.True(t, result.FinalPriceValid)
	check.True(t, result.WinnerValid)
	check.True(t, !result.BidHashValid)
}

func TestValidateSettlementReceipt_NitroMockDocument(t *testing.T) {
	signer := receipt.NewNitroSigner(receipttest.NewMockAttester())
	a, s, bids := settled()
	r, err := receipt.NewIssuer(signer, nil).Issue(context.Background(), a, s, bids)
	assert.Nil(t, err)
	price := dec("1300")

	result, err := ValidateSettlementReceipt(&ReceiptValidationInput{
		Receipt:    *r,
		KnownPCRs:  knownPCRs(),
		AuctionID:  "auction-1",
		BidID:      "bid-3",
		BidAmount:  dec("1300"),
		FinalPrice: &price,
		IsWinner:   true,
	})
	assert.Nil(t, err)

	// The mock carries placeholder certificates, so only the payload checks pass.
	check.True(t, result.Attested)
	check.True(t, result.PCRsValid)
	check.True(t, !result.CertificateValid)
	check.True(t, !result.SignatureValid)
	check.True(t, result.BidHashValid)
	check.True(t, result.FinalPriceValid)
	check.True(t, result.WinnerValid)
	check.True(t, !result.IsValid())
}

func TestValidateSettlementReceipt_NitroWithoutPCRs(t *testing.T) {
	signer := receipt.NewNitroSigner(receipttest.NewMockAttester())
	a, s, bids := settled()
	r, err := receipt.NewIssuer(signer, nil).Issue(context.Background(), a, s, bids)
	assert.Nil(t, err)

	_, err = ValidateSettlementReceipt(&ReceiptValidationInput{Receipt: *r})
	check.NotNil(t, err)
}

func TestValidateKeyAttestation_MockDocument(t *testing.T) {
	key, err := receipt.GenerateKey()
	assert.Nil(t, err)
	signer, err := receipt.NewKeySigner(key)
	assert.Nil(t, err)
	pemKey, err := signer.PublicKeyPEM()
	assert.Nil(t, err)

	doc, err := receipt.AttestKey(receipttest.NewMockAttester(), signer)
	assert.Nil(t, err)
	resp := &auctionapi.ReceiptKeyResponse{
		Signer:                   auctionapi.SignerKey,
		KeyID:                    signer.KeyID(),
		PublicKey:                pemKey,
		KeyAttestationCOSEBase64: doc.EncodeBase64(),
	}

	result, err := ValidateKeyAttestation(resp, pemKey+"\n", knownPCRs())
	assert.Nil(t, err)
	check.True(t, result.PCRsValid)
	check.True(t, result.PublicKeyMatch)
	check.True(t, result.KeyIDMatch)
	check.True(t, !result.IsValid())

	result, err = ValidateKeyAttestation(resp, "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----", knownPCRs())
	assert.Nil(t, err)
	check.True(t, !result.PublicKeyMatch)
}

func TestValidateKeyAttestation_MissingDocument(t *testing.T) {
	_, err := ValidateKeyAttestation(&auctionapi.ReceiptKeyResponse{Signer: auctionapi.SignerKey}, "", knownPCRs())
	check.NotNil(t, err)
}

func TestValidatePCRs(t *testing.T) {
	pcrs := auctionapi.PCRs{ImageFileHash: receipttest.PCR0, KernelHash: receipttest.PCR1, ApplicationHash: receipttest.PCR2}
	sets := append([]PCRSet{{PCR0: "other"}}, knownPCRs()...)

	ok, idx := ValidatePCRs(pcrs, sets)
	check.True(t, ok)
	check.Equal(t, 1, idx)

	ok, idx = ValidatePCRs(auctionapi.PCRs{ImageFileHash: "nope"}, sets)
	check.True(t, !ok)
	check.Equal(t, -1, idx)
}

func TestLoadPCRsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pcrs.json")
	assert.Nil(t, os.WriteFile(path, []byte(`{"pcr_sets":[{"pcr0":"AB","pcr1":"cd","pcr2":"ef","commit_hash":"d"}]}`), 0o600))

	sets, err := LoadPCRsFromFile(path)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(sets))
	check.Equal(t, "d", sets[0].CommitHash)
	check.Equal(t, "ab", sets[0].PCR0)

	partial := filepath.Join(dir, "partial.json")
	assert.Nil(t, os.WriteFile(partial, []byte(`{"pcr_sets":[{"pcr0":"ab"}]}`), 0o600))
	_, err = LoadPCRsFromFile(partial)
	check.NotNil(t, err)

	empty := filepath.Join(dir, "empty.json")
	assert.Nil(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err = LoadPCRsFromFile(empty)
	check.NotNil(t, err)

	_, err = LoadPCRsFromFile(filepath.Join(dir, "missing.json"))
	check.NotNil(t, err)
}

func TestValidateCertificateChain_Malformed(t *testing.T) {
	err := ValidateCertificateChain("not base64!", nil, settledAt)
	check.NotNil(t, err)
}
