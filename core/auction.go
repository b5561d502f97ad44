package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is the terminal decision for an auction.
type Settlement struct {
	State      State           `json:"state"`
	Outcome    Outcome         `json:"outcome"`
	WinningBid *Bid            `json:"winning_bid,omitempty"`
	FinalPrice decimal.Decimal `json:"final_price"`
	ReserveMet bool            `json:"reserve_met"`
}

// Resolve applies the settlement decision table to the leading bid:
//
//	no leading bid                     → NO_BIDS
//	leading bid, no reserve            → SOLD
//	leading bid, amount >= reserve     → SOLD
//	leading bid, amount <  reserve     → ENDED (reserve not met)
//
// The leading bid's amount is used rather than CurrentPrice, because a retracted
// leader can leave CurrentPrice above the live leader.
func Resolve(leading *Bid, reserve decimal.NullDecimal) Settlement {
	if leading == nil {
		return Settlement{State: StateNoBids, Outcome: OutcomeNoBids}
	}
	if !BidMeetsReserve(leading.Amount, reserve) {
		return Settlement{
			State:      StateEnded,
			Outcome:    OutcomeReserveNotMet,
			FinalPrice: leading.Amount,
		}
	}
	return Settlement{
		State:      StateSold,
		Outcome:    OutcomeSold,
		WinningBid: leading,
		FinalPrice: leading.Amount,
		ReserveMet: true,
	}
}

// RunSettlement settles an expired auction in place.
//
// Parameters:
//   - a: a clone of the stored auction
//   - leading: the bid referenced by a.LeadingBidID, or nil when there is none
//   - now: engine clock
//
// Returns:
//   - nil, nil when there is nothing to do (already terminal or not yet expired);
//     this is what makes repeated sweeps safe
//   - the settlement otherwise, with a mutated to the terminal state
//
// Processing flow:
//  1. Skip terminal or unexpired auctions
//  2. Lazily activate a SCHEDULED auction whose whole window has passed
//  3. Apply the decision table
//  4. Record the winner and settlement time
func RunSettlement(a *Auction, leading *Bid, now time.Time) (*Settlement, error) {
	if a.State.IsTerminal() || !a.IsExpiredAt(now) {
		return nil, nil
	}
	a.ActivateIfDue(now)

	if a.LeadingBidID == "" {
		leading = nil
	} else if leading == nil || leading.ID != a.LeadingBidID {
		return nil, Errorf(CodePersistenceUnavailable, "leading bid %s missing from ledger", a.LeadingBidID)
	}

	settlement := Resolve(leading, a.ReservePrice)
	if err := a.Transition(settlement.State); err != nil {
		return nil, err
	}
	if settlement.WinningBid != nil {
		a.WinningBidID = settlement.WinningBid.ID
	}
	settled := now
	a.SettledAt = &settled

	return &settlement, nil
}

// BuyNowSettlement describes the settlement implied by an accepted buy-now.
func BuyNowSettlement(bid *Bid) Settlement {
	return Settlement{
		State:      StateSold,
		Outcome:    OutcomeBuyNow,
		WinningBid: bid,
		FinalPrice: bid.Amount,
		ReserveMet: true,
	}
}
