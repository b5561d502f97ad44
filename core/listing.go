package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingParams describes a new auction as submitted by a seller.
type ListingParams struct {
	SellerID          string
	Lot               Lot
	StartingPrice     decimal.Decimal
	ReservePrice      decimal.NullDecimal
	BuyNowPrice       decimal.NullDecimal
	MinBidIncrement   decimal.Decimal
	StartTime         time.Time
	EndTime           time.Time
	ExtensionWindow   time.Duration
	ExtensionLength   time.Duration
	AutoExtendEnabled bool
	Draft             bool
}

// ValidateListing checks the rules an auction must satisfy before it can leave DRAFT.
func ValidateListing(p ListingParams) error {
	if p.SellerID == "" {
		return Errorf(CodeInvalidRequest, "seller id is required")
	}
	if p.Lot.ItemID == "" {
		return Errorf(CodeInvalidRequest, "lot item id is required")
	}
	if p.Lot.Quantity < 1 {
		return Errorf(CodeInvalidRequest, "lot quantity must be at least 1")
	}
	if p.StartingPrice.IsNegative() {
		return Errorf(CodeInvalidRequest, "starting price must not be negative")
	}
	if !p.MinBidIncrement.IsPositive() {
		return Errorf(CodeInvalidRequest, "minimum bid increment must be positive")
	}
	for _, m := range []struct {
		field string
		value decimal.NullDecimal
	}{
		{"starting price", decimal.NewNullDecimal(p.StartingPrice)},
		{"minimum bid increment", decimal.NewNullDecimal(p.MinBidIncrement)},
		{"reserve price", p.ReservePrice},
		{"buy now price", p.BuyNowPrice},
	} {
		if m.value.Valid {
			if err := checkMoney(m.field, m.value.Decimal); err != nil {
				return err
			}
		}
	}
	if p.StartTime.IsZero() || p.EndTime.IsZero() {
		return Errorf(CodeInvalidRequest, "start and end time are required")
	}
	if !p.EndTime.After(p.StartTime) {
		return Errorf(CodeInvalidRequest, "end time must be after start time")
	}
	if p.ReservePrice.Valid && p.ReservePrice.Decimal.LessThan(p.StartingPrice) {
		return Errorf(CodeInvalidRequest, "reserve price %s is below starting price %s",
			p.ReservePrice.Decimal, p.StartingPrice)
	}
	if p.BuyNowPrice.Valid {
		if !p.BuyNowPrice.Decimal.GreaterThan(p.StartingPrice) {
			return Errorf(CodeInvalidRequest, "buy now price %s must exceed starting price %s",
				p.BuyNowPrice.Decimal, p.StartingPrice)
		}
		if p.ReservePrice.Valid && p.BuyNowPrice.Decimal.LessThan(p.ReservePrice.Decimal) {
			return Errorf(CodeInvalidRequest, "buy now price %s is below reserve price %s",
				p.BuyNowPrice.Decimal, p.ReservePrice.Decimal)
		}
	}
	if p.AutoExtendEnabled && (p.ExtensionWindow <= 0 || p.ExtensionLength <= 0) {
		return Errorf(CodeInvalidRequest, "auto-extend needs a positive extension window and length")
	}
	return nil
}

// NewAuction builds an auction from validated params. Drafts are stored as DRAFT;
// everything else goes straight to SCHEDULED, or ACTIVE when StartTime has passed.
func NewAuction(id, number string, p ListingParams, now time.Time) (*Auction, error) {
	if err := ValidateListing(p); err != nil {
		return nil, err
	}
	if !p.Draft && !now.Before(p.EndTime) {
		return nil, Errorf(CodeInvalidRequest, "end time is already in the past")
	}

	a := &Auction{
		ID:                id,
		Number:            number,
		SellerID:          p.SellerID,
		Lot:               p.Lot,
		StartingPrice:     p.StartingPrice,
		ReservePrice:      p.ReservePrice,
		BuyNowPrice:       p.BuyNowPrice,
		MinBidIncrement:   p.MinBidIncrement,
		CurrentPrice:      p.StartingPrice,
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		ExtensionWindow:   p.ExtensionWindow,
		ExtensionLength:   p.ExtensionLength,
		AutoExtendEnabled: p.AutoExtendEnabled,
		State:             StateDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.Draft {
		return a, nil
	}
	if err := a.Publish(now); err != nil {
		return nil, err
	}
	return a, nil
}

// Publish moves a DRAFT to SCHEDULED (or ACTIVE if StartTime has already passed).
func (a *Auction) Publish(now time.Time) error {
	if a.State != StateDraft {
		return Errorf(CodeNotActive, "only drafts can be published, auction is %s", a.State)
	}
	if !now.Before(a.EndTime) {
		return Errorf(CodeInvalidRequest, "end time is already in the past")
	}
	if err := a.Transition(StateScheduled); err != nil {
		return err
	}
	a.ActivateIfDue(now)
	return nil
}

// Cancel applies the seller-initiated cancellation rules.
func (a *Auction) Cancel(sellerID string) error {
	if sellerID != a.SellerID {
		return Errorf(CodeForbidden, "only the seller can cancel this auction")
	}
	if a.BidCount > 0 {
		return ErrHasBidsCannotCancel
	}
	if a.State != StateDraft && a.State != StateScheduled {
		return Errorf(CodeNotActive, "auction in state %s cannot be cancelled", a.State)
	}
	return a.Transition(StateCancelled)
}
