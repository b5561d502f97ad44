package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeBidHash computes the hash a settlement receipt commits to for one bid.
// This is used by both the engine (to issue receipts) and validation (to verify them).
//
// Formula: SHA256(bid_id + "|" + amount with 4 decimals + "|" + nonce)
//
// The amount is fixed to 4 decimal places so 1100, 1100.0 and 1100.0000 hash the same.
func ComputeBidHash(bidID string, amount decimal.Decimal, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", bidID, FormatMoney(amount), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeBidHashes hashes every non-retracted bid in ledger order.
func ComputeBidHashes(bids []Bid, nonce string) []string {
	hashes := make([]string, 0, len(bids))
	for _, bid := range bids {
		if bid.IsRetracted {
			continue
		}
		hashes = append(hashes, ComputeBidHash(bid.ID, bid.Amount, nonce))
	}
	return hashes
}
