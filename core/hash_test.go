package core

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeBidHash(t *testing.T) {
	bidID := "bid_123"
	amount := decimal.RequireFromString("1100.50")
	nonce := "test_nonce_456"

	hash := ComputeBidHash(bidID, amount, nonce)

	// Verify hash is 64 characters (SHA256 hex encoding)
	if len(hash) != 64 {
		t.Errorf("ComputeBidHash() hash length = %d, want 64", len(hash))
	}

	// Verify hash contains only hex characters
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("ComputeBidHash() contains non-hex character: %c", c)
		}
	}

	// Same inputs should produce same hash (deterministic)
	if hash != ComputeBidHash(bidID, amount, nonce) {
		t.Errorf("ComputeBidHash() not deterministic")
	}

	// Verify exact hash calculation
	expectedData := fmt.Sprintf("%s|%s|%s", bidID, "1100.5000", nonce)
	expectedHash := fmt.Sprintf("%x", sha256.Sum256([]byte(expectedData)))
	if hash != expectedHash {
		t.Errorf("ComputeBidHash() = %v, want %v", hash, expectedHash)
	}
}

func TestComputeBidHash_AmountFormatting(t *testing.T) {
	nonce := "test"

	// Same value at 4 decimal places hashes identically
	hash1 := ComputeBidHash("bid-1", decimal.RequireFromString("1100"), nonce)
	hash2 := ComputeBidHash("bid-1", decimal.RequireFromString("1100.0"), nonce)
	hash3 := ComputeBidHash("bid-1", decimal.RequireFromString("1100.0000"), nonce)
	if hash1 != hash2 || hash1 != hash3 {
		t.Errorf("Amounts equal to 4 decimal places should produce same hash")
	}

	hash4 := ComputeBidHash("bid-1", decimal.RequireFromString("1100.0001"), nonce)
	if hash1 == hash4 {
		t.Errorf("Amounts differing in the 4th decimal should produce different hashes")
	}
}

func TestComputeBidHash_DifferentInputs(t *testing.T) {
	amount := decimal.NewFromInt(250)

	if ComputeBidHash("bid-1", amount, "n") == ComputeBidHash("bid-2", amount, "n") {
		t.Errorf("Different bid IDs should produce different hashes")
	}
	if ComputeBidHash("bid-1", amount, "n") == ComputeBidHash("bid-1", amount.Add(decimal.NewFromInt(1)), "n") {
		t.Errorf("Different amounts should produce different hashes")
	}
	if ComputeBidHash("bid-1", amount, "nonce-1") == ComputeBidHash("bid-1", amount, "nonce-2") {
		t.Errorf("Different nonces should produce different hashes")
	}
}

func TestComputeBidHashes_SkipsRetracted(t *testing.T) {
	bids := []Bid{
		{ID: "b1", Amount: decimal.NewFromInt(1100), Sequence: 1},
		{ID: "b2", Amount: decimal.NewFromInt(1200), Sequence: 2, IsRetracted: true},
		{ID: "b3", Amount: decimal.NewFromInt(1300), Sequence: 3},
	}

	hashes := ComputeBidHashes(bids, "nonce")

	if len(hashes) != 2 {
		t.Fatalf("ComputeBidHashes() returned %d hashes, want 2", len(hashes))
	}
	if hashes[0] != ComputeBidHash("b1", decimal.NewFromInt(1100), "nonce") {
		t.Errorf("first hash does not match b1")
	}
	if hashes[1] != ComputeBidHash("b3", decimal.NewFromInt(1300), "nonce") {
		t.Errorf("second hash does not match b3")
	}
}
