package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is a position in the auction lifecycle.
type State string

const (
	StateDraft     State = "DRAFT"
	StateScheduled State = "SCHEDULED"
	StateActive    State = "ACTIVE"
	StateExtended  State = "EXTENDED"
	StateSold      State = "SOLD"
	StateEnded     State = "ENDED"
	StateNoBids    State = "NO_BIDS"
	StateCancelled State = "CANCELLED"
)

// Lot references the item being sold. The engine never interprets it.
type Lot struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Auction is a single-lot, single-winner listing.
type Auction struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	SellerID string `json:"seller_id"`
	Lot      Lot    `json:"lot"`

	StartingPrice   decimal.Decimal     `json:"starting_price"`
	ReservePrice    decimal.NullDecimal `json:"reserve_price"`
	BuyNowPrice     decimal.NullDecimal `json:"buy_now_price"`
	MinBidIncrement decimal.Decimal     `json:"min_bid_increment"`
	CurrentPrice    decimal.Decimal     `json:"current_price"`

	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	ExtensionWindow   time.Duration `json:"extension_window"`
	ExtensionLength   time.Duration `json:"extension_length"`
	AutoExtendEnabled bool          `json:"auto_extend_enabled"`
	ExtensionCount    int           `json:"extension_count"`

	State        State  `json:"state"`
	BidCount     int    `json:"bid_count"`
	WatcherCount int    `json:"watcher_count"`
	LeadingBidID string `json:"leading_bid_id,omitempty"`
	WinningBidID string `json:"winning_bid_id,omitempty"`

	// Version is bumped by the store on every successful compare-and-swap.
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// Clone returns a copy safe to mutate without touching the receiver.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	if a.SettledAt != nil {
		t := *a.SettledAt
		c.SettledAt = &t
	}
	return &c
}

// Bid is one accepted bid attempt. Only IsWinning and IsRetracted change after admission.
type Bid struct {
	ID          string              `json:"id"`
	AuctionID   string              `json:"auction_id"`
	BidderID    string              `json:"bidder_id"`
	Amount      decimal.Decimal     `json:"amount"`
	MaxBid      decimal.NullDecimal `json:"max_bid"`
	IsWinning   bool                `json:"is_winning"`
	IsRetracted bool                `json:"is_retracted"`
	IsBuyNow    bool                `json:"is_buy_now"`
	Sequence    int                 `json:"sequence"`
	PlacedAt    time.Time           `json:"placed_at"`
}

// BidFlagUpdate changes the mutable flags of an existing bid.
type BidFlagUpdate struct {
	BidID       string
	IsWinning   *bool
	IsRetracted *bool
}

// BidWrites are the ledger changes that must commit together with an auction row update.
type BidWrites struct {
	Append  *Bid
	Updates []BidFlagUpdate
}

// Empty reports whether there is nothing to write to the ledger.
func (w BidWrites) Empty() bool {
	return w.Append == nil && len(w.Updates) == 0
}

// Outcome explains why an auction reached its terminal state.
type Outcome string

const (
	OutcomeSold          Outcome = "sold"
	OutcomeBuyNow        Outcome = "buy_now"
	OutcomeReserveNotMet Outcome = "reserve_not_met"
	OutcomeNoBids        Outcome = "no_bids"
	OutcomeCancelled     Outcome = "cancelled"
)

// Event topics published to the notification gateway.
const (
	TopicBidPlaced        = "bid.placed"
	TopicBidRetracted     = "bid.retracted"
	TopicAuctionSold      = "auction.sold"
	TopicAuctionEnded     = "auction.ended"
	TopicAuctionCancelled = "auction.cancelled"
	TopicAuctionActivated = "auction.activated"
)

func boolPtr(b bool) *bool { return &b }
