package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// activeAuction returns an ACTIVE auction: starting 1000, increment 100, ends in 3 minutes.
func activeAuction() *Auction {
	return &Auction{
		ID:                "auction-1",
		Number:            "AUC-20260314-000001",
		SellerID:          "seller",
		Lot:               Lot{ItemID: "item-1", Quantity: 1},
		StartingPrice:     dec("1000"),
		MinBidIncrement:   dec("100"),
		CurrentPrice:      dec("1000"),
		StartTime:         testNow.Add(-time.Hour),
		EndTime:           testNow.Add(3 * time.Minute),
		ExtensionWindow:   5 * time.Second,
		ExtensionLength:   2 * time.Minute,
		AutoExtendEnabled: true,
		State:             StateActive,
	}
}

func bidReq(bidder, amount string) BidRequest {
	return BidRequest{BidderID: bidder, Amount: dec(amount)}
}
