package auctionapi

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestReceiptCOSE_Base64RoundTrip(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data"))

	encoded := coseBytes.EncodeBase64()
	check.NotEqual(t, "", encoded)

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestReceiptCOSE_EncodeURLSafe(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-url-encoding"))

	encoded := coseBytes.EncodeURLSafe()
	check.True(t, !strings.Contains(encoded.String(), "="))

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)

	padded := ReceiptCOSEURLBase64("dGVzdA==")
	decoded, err = padded.Decode()
	check.Nil(t, err)
	check.Equal(t, ReceiptCOSE([]byte("test")), decoded)
}

func TestReceiptCOSE_CompressGzip(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-compression-testing"))

	compressed, err := coseBytes.CompressGzip()
	check.Nil(t, err)

	s := compressed.String()
	check.True(t, !strings.ContainsAny(s, "+/="))

	again, err := coseBytes.CompressGzip()
	check.Nil(t, err)
	check.Equal(t, compressed, again)

	decompressed, err := compressed.Decompress()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decompressed)
}

func TestReceiptCOSEGzip_DecompressInvalid(t *testing.T) {
	tests := []struct {
		name      string
		input     ReceiptCOSEGzip
		errSubstr string
	}{
		{"invalid base64url", "!!!invalid!!!", "decode base64url"},
		{"valid base64 but not gzip", "bW9jaw", "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decompress()
			check.NotNil(t, err)
			check.Nil(t, result)
			check.True(t, strings.Contains(err.Error(), tt.errSubstr))
		})
	}
}

func TestReceiptCOSEBase64_DecodeInvalid(t *testing.T) {
	_, err := ReceiptCOSEBase64("not-valid-base64!!!@@@").Decode()
	check.NotNil(t, err)
	check.True(t, strings.Contains(err.Error(), "decode COSE base64"))
}

func TestReceiptPayload_CBOR(t *testing.T) {
	settled := time.Date(2026, 3, 14, 12, 3, 0, 123456789, time.UTC)
	p := &ReceiptPayload{
		AuctionID:    "auction-1",
		Outcome:      "sold",
		WinningBidID: "bid-7",
		FinalPrice:   "1500.0000",
		ReserveMet:   true,
		BidHashes:    []string{"aa", "bb"},
		BidHashNonce: "nonce",
		SettledAt:    settled,
	}

	data, err := EncodeReceiptPayload(p)
	assert.Nil(t, err)

	// canonical encoding is stable
	again, err := EncodeReceiptPayload(p)
	assert.Nil(t, err)
	check.Equal(t, data, again)

	decoded, err := DecodeReceiptPayload(data)
	assert.Nil(t, err)
	check.Equal(t, p.AuctionID, decoded.AuctionID)
	check.Equal(t, p.BidHashes, decoded.BidHashes)
	check.True(t, decoded.SettledAt.Equal(settled))
}

func TestEvent_CBOR(t *testing.T) {
	end := time.Date(2026, 3, 14, 12, 5, 0, 1, time.UTC)
	e := Event{
		Topic:        "bid.placed",
		AuctionID:    "auction-1",
		State:        "EXTENDED",
		BidID:        "bid-1",
		CurrentPrice: "1100",
		Extended:     true,
		EndTime:      &end,
		OccurredAt:   end.Add(-2 * time.Minute),
	}

	data, err := EncodeEvent(e)
	assert.Nil(t, err)

	got, err := DecodeEvent(data)
	assert.Nil(t, err)
	check.Equal(t, e.Topic, got.Topic)
	check.True(t, got.Extended)
	assert.NotNil(t, got.EndTime)
	check.True(t, got.EndTime.Equal(end))
	check.True(t, !got.IsSettlement())
	check.True(t, Event{Topic: "auction.sold"}.IsSettlement())
}
