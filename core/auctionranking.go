package core

import (
	"sort"
)

// RankingResult contains the ranked bidders and their highest live bids.
type RankingResult struct {
	Ranks         map[string]int  `json:"ranks"`
	HighestBids   map[string]*Bid `json:"highest_bids"`
	SortedBidders []string        `json:"sorted_bidders"`
}

// RankBids ranks bidders by their highest non-retracted bid.
// Ties on amount go to the bid admitted first (lower Sequence); admission order is
// the only tie-break the sequencer can observe.
func RankBids(bids []Bid) *RankingResult {
	if len(bids) == 0 {
		return &RankingResult{
			Ranks:         make(map[string]int),
			HighestBids:   make(map[string]*Bid),
			SortedBidders: make([]string, 0),
		}
	}

	type bidEntry struct {
		bidder string
		bid    *Bid
	}

	// Find highest bid per bidder while preserving order of first occurrence
	bidderMap := make(map[string]*Bid)
	bidderOrder := make([]string, 0, len(bids))

	for i := range bids {
		bid := &bids[i]
		if bid.IsRetracted {
			continue
		}

		existing, exists := bidderMap[bid.BidderID]
		if !exists {
			bidderOrder = append(bidderOrder, bid.BidderID)
		}
		if !exists || bid.Amount.GreaterThan(existing.Amount) ||
			(bid.Amount.Equal(existing.Amount) && bid.Sequence < existing.Sequence) {
			bidderMap[bid.BidderID] = bid
		}
	}

	entries := make([]bidEntry, 0, len(bidderOrder))
	for _, bidder := range bidderOrder {
		entries = append(entries, bidEntry{bidder: bidder, bid: bidderMap[bidder]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].bid, entries[j].bid
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Sequence < b.Sequence
	})

	result := &RankingResult{
		Ranks:         make(map[string]int, len(entries)),
		HighestBids:   make(map[string]*Bid, len(entries)),
		SortedBidders: make([]string, len(entries)),
	}

	for rank, entry := range entries {
		result.Ranks[entry.bidder] = rank + 1
		result.HighestBids[entry.bidder] = entry.bid
		result.SortedBidders[rank] = entry.bidder
	}

	return result
}

// LeadingCandidate returns the bid that should lead among bids, or nil if none is live.
func LeadingCandidate(bids []Bid) *Bid {
	ranking := RankBids(bids)
	if len(ranking.SortedBidders) == 0 {
		return nil
	}
	return ranking.HighestBids[ranking.SortedBidders[0]]
}
