package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"
)

// ReceiptSigner names the mechanism that signed a settlement receipt.
type ReceiptSigner string

const (
	// SignerKey receipts are COSE_Sign1 (ES256) messages signed with the server's receipt key.
	SignerKey ReceiptSigner = "key"
	// SignerNitro receipts are Nitro attestation documents carrying the payload as user data.
	SignerNitro ReceiptSigner = "nitro"
)

// ReceiptPayload is the CBOR body a settlement receipt commits to. BidHashes
// cover every non-retracted bid as SHA256(bid_id|amount|nonce), so a bidder can
// prove inclusion without the receipt revealing other bidders' amounts.
type ReceiptPayload struct {
	AuctionID    string    `cbor:"auction_id" json:"auction_id"`
	Outcome      string    `cbor:"outcome" json:"outcome"`
	WinningBidID string    `cbor:"winning_bid_id,omitempty" json:"winning_bid_id,omitempty"`
	FinalPrice   string    `cbor:"final_price,omitempty" json:"final_price,omitempty"`
	ReserveMet   bool      `cbor:"reserve_met" json:"reserve_met"`
	BidHashes    []string  `cbor:"bid_hashes" json:"bid_hashes"`
	BidHashNonce string    `cbor:"bid_hash_nonce" json:"bid_hash_nonce"`
	SettledAt    time.Time `cbor:"settled_at" json:"settled_at"`
}

// EncodeReceiptPayload serializes p as canonical CBOR.
func EncodeReceiptPayload(p *ReceiptPayload) ([]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode receipt payload: %w", err)
	}
	return data, nil
}

// DecodeReceiptPayload parses a CBOR receipt payload.
func DecodeReceiptPayload(data []byte) (*ReceiptPayload, error) {
	var p ReceiptPayload
	if err := decMode.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &p, nil
}

// SettlementReceipt is attached to settlement events.
type SettlementReceipt struct {
	Signer     ReceiptSigner     `cbor:"signer" json:"signer"`
	KeyID      string            `cbor:"key_id,omitempty" json:"key_id,omitempty"`
	COSEBase64 ReceiptCOSEBase64 `cbor:"cose_base64" json:"cose_base64"`
}

// ReceiptCOSE holds raw COSE_Sign1 bytes.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is standard base64 encoded COSE, used in JSON.
type ReceiptCOSEBase64 string

// ReceiptCOSEURLBase64 is unpadded URL-safe base64 encoded COSE.
type ReceiptCOSEURLBase64 string

// ReceiptCOSEGzip is gzip compressed COSE, URL-safe base64 encoded without padding.
type ReceiptCOSEGzip string

func (c ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

func (c ReceiptCOSE) EncodeURLSafe() ReceiptCOSEURLBase64 {
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(c))
}

// CompressGzip compresses the COSE bytes for transport in URLs. The gzip header
// carries no timestamp, so output is deterministic.
func (c ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(c); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b ReceiptCOSEBase64) String() string { return string(b) }

func (b ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (b ReceiptCOSEBase64) CompressGzip() (ReceiptCOSEGzip, error) {
	c, err := b.Decode()
	if err != nil {
		return "", err
	}
	return c.CompressGzip()
}

func (u ReceiptCOSEURLBase64) String() string { return string(u) }

// Decode accepts input with or without padding.
func (u ReceiptCOSEURLBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(u), "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (g ReceiptCOSEGzip) String() string { return string(g) }

func (g ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip data: %w", err)
	}
	return ReceiptCOSE(data), nil
}
