package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openbid/core"
)

// Times are stored as unix nanoseconds so end-time comparisons in SQL are exact.

type auctionRow struct {
	ID                string `gorm:"primaryKey"`
	Number            string `gorm:"index"`
	SellerID          string `gorm:"index"`
	ItemID            string
	Quantity          int
	StartingPrice     decimal.Decimal     `gorm:"type:text"`
	ReservePrice      decimal.NullDecimal `gorm:"type:text"`
	BuyNowPrice       decimal.NullDecimal `gorm:"type:text"`
	MinBidIncrement   decimal.Decimal     `gorm:"type:text"`
	CurrentPrice      decimal.Decimal     `gorm:"type:text"`
	StartTime         int64
	EndTime           int64 `gorm:"index:idx_auction_expiry,priority:2"`
	ExtensionWindow   int64
	ExtensionLength   int64
	AutoExtendEnabled bool
	ExtensionCount    int
	State             string `gorm:"index:idx_auction_expiry,priority:1"`
	BidCount          int
	WatcherCount      int
	LeadingBidID      string
	WinningBidID      string
	Version           int64
	CreatedAtNs       int64
	UpdatedAtNs       int64
	SettledAtNs       *int64
}

func (auctionRow) TableName() string { return "auctions" }

type bidRow struct {
	ID          string              `gorm:"primaryKey"`
	AuctionID   string              `gorm:"uniqueIndex:idx_bid_sequence,priority:1"`
	Sequence    int                 `gorm:"uniqueIndex:idx_bid_sequence,priority:2"`
	BidderID    string              `gorm:"index"`
	Amount      decimal.Decimal     `gorm:"type:text"`
	MaxBid      decimal.NullDecimal `gorm:"type:text"`
	IsWinning   bool
	IsRetracted bool
	IsBuyNow    bool
	PlacedAtNs  int64
}

func (bidRow) TableName() string { return "bids" }

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func newAuctionRow(a *core.Auction) *auctionRow {
	row := &auctionRow{
		ID:                a.ID,
		Number:            a.Number,
		SellerID:          a.SellerID,
		ItemID:            a.Lot.ItemID,
		Quantity:          a.Lot.Quantity,
		StartingPrice:     a.StartingPrice,
		ReservePrice:      a.ReservePrice,
		BuyNowPrice:       a.BuyNowPrice,
		MinBidIncrement:   a.MinBidIncrement,
		CurrentPrice:      a.CurrentPrice,
		StartTime:         toNanos(a.StartTime),
		EndTime:           toNanos(a.EndTime),
		ExtensionWindow:   int64(a.ExtensionWindow),
		ExtensionLength:   int64(a.ExtensionLength),
		AutoExtendEnabled: a.AutoExtendEnabled,
		ExtensionCount:    a.ExtensionCount,
		State:             string(a.State),
		BidCount:          a.BidCount,
		WatcherCount:      a.WatcherCount,
		LeadingBidID:      a.LeadingBidID,
		WinningBidID:      a.WinningBidID,
		Version:           a.Version,
		CreatedAtNs:       toNanos(a.CreatedAt),
		UpdatedAtNs:       toNanos(a.UpdatedAt),
	}
	if a.SettledAt != nil {
		n := a.SettledAt.UnixNano()
		row.SettledAtNs = &n
	}
	return row
}

func (r *auctionRow) auction() *core.Auction {
	a := &core.Auction{
		ID:                r.ID,
		Number:            r.Number,
		SellerID:          r.SellerID,
		Lot:               core.Lot{ItemID: r.ItemID, Quantity: r.Quantity},
		StartingPrice:     r.StartingPrice,
		ReservePrice:      r.ReservePrice,
		BuyNowPrice:       r.BuyNowPrice,
		MinBidIncrement:   r.MinBidIncrement,
		CurrentPrice:      r.CurrentPrice,
		StartTime:         fromNanos(r.StartTime),
		EndTime:           fromNanos(r.EndTime),
		ExtensionWindow:   time.Duration(r.ExtensionWindow),
		ExtensionLength:   time.Duration(r.ExtensionLength),
		AutoExtendEnabled: r.AutoExtendEnabled,
		ExtensionCount:    r.ExtensionCount,
		State:             core.State(r.State),
		BidCount:          r.BidCount,
		WatcherCount:      r.WatcherCount,
		LeadingBidID:      r.LeadingBidID,
		WinningBidID:      r.WinningBidID,
		Version:           r.Version,
		CreatedAt:         fromNanos(r.CreatedAtNs),
		UpdatedAt:         fromNanos(r.UpdatedAtNs),
	}
	if r.SettledAtNs != nil {
		t := fromNanos(*r.SettledAtNs)
		a.SettledAt = &t
	}
	return a
}

func newBidRow(b *core.Bid) *bidRow {
	return &bidRow{
		ID:          b.ID,
		AuctionID:   b.AuctionID,
		Sequence:    b.Sequence,
		BidderID:    b.BidderID,
		Amount:      b.Amount,
		MaxBid:      b.MaxBid,
		IsWinning:   b.IsWinning,
		IsRetracted: b.IsRetracted,
		IsBuyNow:    b.IsBuyNow,
		PlacedAtNs:  toNanos(b.PlacedAt),
	}
}

func (r *bidRow) bid() core.Bid {
	return core.Bid{
		ID:          r.ID,
		AuctionID:   r.AuctionID,
		BidderID:    r.BidderID,
		Amount:      r.Amount,
		MaxBid:      r.MaxBid,
		IsWinning:   r.IsWinning,
		IsRetracted: r.IsRetracted,
		IsBuyNow:    r.IsBuyNow,
		Sequence:    r.Sequence,
		PlacedAt:    fromNanos(r.PlacedAtNs),
	}
}
