// Package auctionapi defines the wire types exchanged with the auction server,
// the notification envelope and the settlement receipt formats.
package auctionapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openbid/core"
)

// Request types understood by the server.
const (
	TypePing           = "ping"
	TypeCreateAuction  = "create_auction"
	TypePublishAuction = "publish_auction"
	TypePlaceBid       = "place_bid"
	TypeBuyNow         = "buy_now"
	TypeCancelAuction  = "cancel_auction"
	TypeRetractBid     = "retract_bid"
	TypeGetAuction     = "get_auction"
	TypeBidHistory     = "bid_history"
	TypeToggleWatch    = "toggle_watch"
	TypeReceiptKey     = "receipt_key"
	TypeSubscribe      = "subscribe"
)

// CreateAuctionRequest lists a new auction. Durations are in seconds.
type CreateAuctionRequest struct {
	Type              string              `json:"type"`
	SellerID          string              `json:"seller_id"`
	ItemID            string              `json:"item_id"`
	Quantity          int                 `json:"quantity"`
	StartingPrice     decimal.Decimal     `json:"starting_price"`
	ReservePrice      decimal.NullDecimal `json:"reserve_price"`
	BuyNowPrice       decimal.NullDecimal `json:"buy_now_price"`
	MinBidIncrement   decimal.Decimal     `json:"min_bid_increment"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	ExtensionWindow   int64               `json:"extension_window_seconds"`
	ExtensionLength   int64               `json:"extension_length_seconds"`
	AutoExtendEnabled bool                `json:"auto_extend_enabled"`
	Draft             bool                `json:"draft,omitempty"`
}

// Listing converts the request into listing parameters.
func (r *CreateAuctionRequest) Listing() core.ListingParams {
	return core.ListingParams{
		SellerID:          r.SellerID,
		Lot:               core.Lot{ItemID: r.ItemID, Quantity: r.Quantity},
		StartingPrice:     r.StartingPrice,
		ReservePrice:      r.ReservePrice,
		BuyNowPrice:       r.BuyNowPrice,
		MinBidIncrement:   r.MinBidIncrement,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		ExtensionWindow:   time.Duration(r.ExtensionWindow) * time.Second,
		ExtensionLength:   time.Duration(r.ExtensionLength) * time.Second,
		AutoExtendEnabled: r.AutoExtendEnabled,
		Draft:             r.Draft,
	}
}

type PublishAuctionRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	SellerID  string `json:"seller_id"`
}

// PlaceBidRequest submits a bid. ClientTimestamp is accepted for logging only;
// admission always uses the server clock.
type PlaceBidRequest struct {
	Type            string              `json:"type"`
	AuctionID       string              `json:"auction_id"`
	BidderID        string              `json:"bidder_id"`
	Amount          decimal.Decimal     `json:"amount"`
	MaxBid          decimal.NullDecimal `json:"max_bid"`
	ClientTimestamp *time.Time          `json:"client_timestamp,omitempty"`
}

type BuyNowRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	BuyerID   string `json:"buyer_id"`
}

type CancelAuctionRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	SellerID  string `json:"seller_id"`
}

type RetractBidRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	BidID     string `json:"bid_id"`
	BidderID  string `json:"bidder_id"`
}

type GetAuctionRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type BidHistoryRequest struct {
	Type             string `json:"type"`
	AuctionID        string `json:"auction_id"`
	IncludeRetracted bool   `json:"include_retracted,omitempty"`
}

type ToggleWatchRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
}

// SubscribeRequest turns the connection into an event stream for one auction,
// or for every auction when AuctionID is empty. The server answers with one
// Response followed by newline-delimited Events.
type SubscribeRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id,omitempty"`
}

// Response is the envelope for every server reply. Failures carry only the
// error code and its caller-facing reason.
type Response struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// AuctionView is an auction as shown to clients.
type AuctionView struct {
	*core.Auction
	TimeRemainingMs int64 `json:"time_remaining_ms"`
}

type BidResult struct {
	Bid      *core.Bid    `json:"bid"`
	Auction  *AuctionView `json:"auction"`
	Extended bool         `json:"extended"`
}

type RetractResult struct {
	Bid         *core.Bid    `json:"bid"`
	Auction     *AuctionView `json:"auction"`
	NewLeaderID string       `json:"new_leader_id,omitempty"`
}

type WatchResult struct {
	Watching     bool `json:"watching"`
	WatcherCount int  `json:"watcher_count"`
}

// ReceiptKeyResponse publishes the key settlement receipts are signed with.
// KeyAttestation, when present, is a Nitro attestation document binding the key
// to the enclave image.
type ReceiptKeyResponse struct {
	Signer                   ReceiptSigner     `json:"signer"`
	KeyID                    string            `json:"key_id,omitempty"`
	PublicKey                string            `json:"public_key,omitempty"` // PEM format
	KeyAttestationCOSEBase64 ReceiptCOSEBase64 `json:"key_attestation_cose_base64,omitempty"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications
	ApplicationHash string `json:"2"`

	InstanceIDHash  string `json:"4"`
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the decoded Nitro attestation document. Certificate and
// CABundle entries are base64 DER.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationUserData is embedded in the attestation that binds a receipt key.
type KeyAttestationUserData struct {
	KeyAlgorithm string `cbor:"key_algorithm" json:"key_algorithm"`
	PublicKey    string `cbor:"public_key" json:"public_key"` // PEM
	KeyID        string `cbor:"key_id" json:"key_id"`
}
