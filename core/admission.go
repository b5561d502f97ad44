package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidRequest is a bid as submitted by a bidder. It deliberately has no timestamp:
// admission time is always the engine's own clock.
type BidRequest struct {
	BidderID string
	Amount   decimal.Decimal
	MaxBid   decimal.NullDecimal
}

// Admission is the result of admitting a bid: the new bid, the ledger writes that
// must commit with the auction row, and whether auto-extension fired.
type Admission struct {
	Bid      *Bid
	Writes   BidWrites
	Extended bool
}

// AdmitBid validates req against a and, on success, mutates a in place.
// Callers pass a clone and persist it with the returned writes as one unit.
//
// Checks run in a fixed order: input, self-bid, open window, increment, proxy ceiling.
func AdmitBid(a *Auction, bidID string, req BidRequest, now time.Time) (*Admission, error) {
	if req.BidderID == "" {
		return nil, Errorf(CodeInvalidRequest, "bidder id is required")
	}
	if err := checkMoney("bid amount", req.Amount); err != nil {
		return nil, err
	}
	if req.MaxBid.Valid {
		if err := checkMoney("max bid", req.MaxBid.Decimal); err != nil {
			return nil, err
		}
	}
	if req.BidderID == a.SellerID {
		return nil, ErrSelfBidForbidden
	}
	if !a.IsOpenAt(now) {
		return nil, notActive(a)
	}
	if !BidMeetsIncrement(a, req.Amount) {
		return nil, Errorf(CodeBidTooLow, "bid must be at least %s", displayMoney(MinimumNextBid(a)))
	}
	if req.MaxBid.Valid && req.MaxBid.Decimal.LessThan(req.Amount) {
		return nil, Errorf(CodeInvalidRequest, "max bid %s is below bid amount %s", req.MaxBid.Decimal, req.Amount)
	}

	bid := &Bid{
		ID:        bidID,
		AuctionID: a.ID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		MaxBid:    req.MaxBid,
		IsWinning: true,
		PlacedAt:  now,
	}
	writes := promote(a, bid)
	extended := ApplyAutoExtension(a, now)

	return &Admission{Bid: bid, Writes: writes, Extended: extended}, nil
}

// AdmitBuyNow closes a at its buy-now price. Buy-now never goes through the
// settlement resolver: the price was validated against the reserve at creation.
func AdmitBuyNow(a *Auction, bidID, buyerID string, now time.Time) (*Admission, error) {
	if !a.BuyNowPrice.Valid {
		return nil, ErrNotAvailable
	}
	if buyerID == "" {
		return nil, Errorf(CodeInvalidRequest, "buyer id is required")
	}
	if buyerID == a.SellerID {
		return nil, ErrSelfBidForbidden
	}
	if !a.IsOpenAt(now) {
		return nil, notActive(a)
	}
	if !BuyNowOpen(a) {
		return nil, Errorf(CodeNotAvailable, "bidding has reached the buy now price")
	}

	bid := &Bid{
		ID:        bidID,
		AuctionID: a.ID,
		BidderID:  buyerID,
		Amount:    a.BuyNowPrice.Decimal,
		IsWinning: true,
		IsBuyNow:  true,
		PlacedAt:  now,
	}
	writes := promote(a, bid)
	if err := a.Transition(StateSold); err != nil {
		return nil, err
	}
	a.WinningBidID = bid.ID
	settled := now
	a.SettledAt = &settled

	return &Admission{Bid: bid, Writes: writes}, nil
}

// promote makes bid the leader: demotes the previous leader, bumps the price and count.
func promote(a *Auction, bid *Bid) BidWrites {
	writes := BidWrites{Append: bid}
	if a.LeadingBidID != "" {
		writes.Updates = append(writes.Updates, BidFlagUpdate{BidID: a.LeadingBidID, IsWinning: boolPtr(false)})
	}
	a.BidCount++
	bid.Sequence = a.BidCount
	a.CurrentPrice = bid.Amount
	a.LeadingBidID = bid.ID
	return writes
}

func notActive(a *Auction) *Error {
	if a.State.IsBiddable() {
		return Errorf(CodeNotActive, "auction closed at %s", a.EndTime.UTC().Format(time.RFC3339))
	}
	return Errorf(CodeNotActive, "auction is %s", a.State)
}
