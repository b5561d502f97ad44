package engine

import "sync"

// WatchRegistry tracks which users watch which auctions. It has its own lock and
// never touches the auction record, so toggling never contends with bids.
type WatchRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{}
}

func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: make(map[string]map[string]struct{})}
}

// Toggle flips the user's membership and returns the new state and count.
func (r *WatchRegistry) Toggle(auctionID, userID string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.watchers[auctionID]
	if !ok {
		users = make(map[string]struct{})
		r.watchers[auctionID] = users
	}
	if _, watching := users[userID]; watching {
		delete(users, userID)
		n := len(users)
		if n == 0 {
			delete(r.watchers, auctionID)
		}
		return false, n
	}
	users[userID] = struct{}{}
	return true, len(users)
}

func (r *WatchRegistry) Count(auctionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers[auctionID])
}

func (r *WatchRegistry) IsWatching(auctionID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watchers[auctionID][userID]
	return ok
}
