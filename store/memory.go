// Package store holds the auction record store and bid ledger implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudx-io/openbid/core"
)

// MemoryStore keeps auctions and bids in process memory. Every CompareAndSwap
// applies the auction row and its ledger writes under one lock, so a reader
// never observes one without the other.
type MemoryStore struct {
	mu        sync.RWMutex
	auctions  map[string]*core.Auction
	bids      map[string]*core.Bid
	byAuction map[string][]string // bid ids in sequence order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:  make(map[string]*core.Auction),
		bids:      make(map[string]*core.Bid),
		byAuction: make(map[string][]string),
	}
}

// Create inserts a new auction at version 1.
func (s *MemoryStore) Create(_ context.Context, a *core.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[a.ID]; exists {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	a.Version = 1
	s.auctions[a.ID] = a.Clone()
	return nil
}

// Get returns a copy of the stored auction.
func (s *MemoryStore) Get(_ context.Context, id string) (*core.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, core.Errorf(core.CodeNotFound, "auction %s not found", id)
	}
	return a.Clone(), nil
}

// CompareAndSwap replaces the auction row if its version still equals
// expectedVersion, and applies writes in the same critical section. On success
// next.Version is set to the new version.
func (s *MemoryStore) CompareAndSwap(_ context.Context, expectedVersion int64, next *core.Auction, writes core.BidWrites) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.auctions[next.ID]
	if !ok {
		return core.Errorf(core.CodeNotFound, "auction %s not found", next.ID)
	}
	if current.Version != expectedVersion {
		return core.ErrVersionConflict
	}

	// Validate every ledger write before touching anything.
	if b := writes.Append; b != nil {
		if _, exists := s.bids[b.ID]; exists {
			return fmt.Errorf("bid %s already exists", b.ID)
		}
		if b.AuctionID != next.ID {
			return fmt.Errorf("bid %s belongs to auction %s, not %s", b.ID, b.AuctionID, next.ID)
		}
	}
	for _, u := range writes.Updates {
		b, exists := s.bids[u.BidID]
		if !exists && (writes.Append == nil || writes.Append.ID != u.BidID) {
			return fmt.Errorf("bid %s not found", u.BidID)
		}
		if exists && b.AuctionID != next.ID {
			return fmt.Errorf("bid %s belongs to auction %s, not %s", u.BidID, b.AuctionID, next.ID)
		}
	}

	if b := writes.Append; b != nil {
		stored := *b
		s.bids[b.ID] = &stored
		s.byAuction[next.ID] = append(s.byAuction[next.ID], b.ID)
	}
	for _, u := range writes.Updates {
		b := s.bids[u.BidID]
		if u.IsWinning != nil {
			b.IsWinning = *u.IsWinning
		}
		if u.IsRetracted != nil {
			b.IsRetracted = *u.IsRetracted
		}
	}

	next.Version = expectedVersion + 1
	s.auctions[next.ID] = next.Clone()
	return nil
}

// ListExpired returns ids of auctions still open or scheduled whose end time is
// at or before now, oldest first.
func (s *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	candidates := make([]*core.Auction, 0)
	for _, a := range s.auctions {
		if a.IsExpiredAt(now) {
			candidates = append(candidates, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].EndTime.Equal(candidates[j].EndTime) {
			return candidates[i].EndTime.Before(candidates[j].EndTime)
		}
		return candidates[i].ID < candidates[j].ID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = a.ID
	}
	return ids, nil
}

// GetBid returns a copy of a stored bid.
func (s *MemoryStore) GetBid(_ context.Context, bidID string) (*core.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[bidID]
	if !ok {
		return nil, core.Errorf(core.CodeNotFound, "bid %s not found", bidID)
	}
	c := *b
	return &c, nil
}

// ListByAuction returns the auction's bids ordered by sequence.
func (s *MemoryStore) ListByAuction(_ context.Context, auctionID string, excludeRetracted bool) ([]core.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAuction[auctionID]
	out := make([]core.Bid, 0, len(ids))
	for _, id := range ids {
		b := s.bids[id]
		if excludeRetracted && b.IsRetracted {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}
