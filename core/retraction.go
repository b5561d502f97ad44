package core

import "time"

// Retraction is the result of soft-cancelling a bid.
type Retraction struct {
	Bid       *Bid
	Writes    BidWrites
	NewLeader *Bid
	// NoOp is set when the bid was already retracted.
	NoOp bool
}

// RetractBid marks bidID retracted. CurrentPrice is left untouched; if the bid was
// leading, the best remaining live bid takes over (or the auction has no leader).
// bids must be the auction's full ledger.
func RetractBid(a *Auction, bids []Bid, bidID, bidderID string, now time.Time) (*Retraction, error) {
	var target *Bid
	for i := range bids {
		if bids[i].ID == bidID {
			target = &bids[i]
			break
		}
	}
	if target == nil {
		return nil, Errorf(CodeNotFound, "bid %s not found", bidID)
	}
	if target.BidderID != bidderID {
		return nil, Errorf(CodeForbidden, "only the bidder can retract this bid")
	}
	if !a.IsOpenAt(now) {
		return nil, notActive(a)
	}
	if target.IsRetracted {
		return &Retraction{Bid: target, NoOp: true}, nil
	}

	update := BidFlagUpdate{BidID: target.ID, IsRetracted: boolPtr(true)}
	wasLeader := a.LeadingBidID == target.ID
	if wasLeader {
		update.IsWinning = boolPtr(false)
	}
	target.IsRetracted = true
	target.IsWinning = false

	r := &Retraction{Bid: target, Writes: BidWrites{Updates: []BidFlagUpdate{update}}}
	if !wasLeader {
		return r, nil
	}

	a.LeadingBidID = ""
	if next := LeadingCandidate(bids); next != nil {
		a.LeadingBidID = next.ID
		next.IsWinning = true
		r.NewLeader = next
		r.Writes.Updates = append(r.Writes.Updates, BidFlagUpdate{BidID: next.ID, IsWinning: boolPtr(true)})
	}
	return r, nil
}
