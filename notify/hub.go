// Package notify fans committed auction events out to subscribers, logs and
// an on-disk journal.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
)

// Notifier matches engine.Notifier.
type Notifier interface {
	Publish(topic string, event auctionapi.Event)
}

// AllAuctions subscribes to every auction.
const AllAuctions = ""

const DefaultBuffer = 64

// Subscription is one subscriber's event stream. C is closed on Unsubscribe or
// when the hub evicts a subscriber that fell behind on a settlement event.
type Subscription struct {
	C <-chan auctionapi.Event

	id        int
	auctionID string
	ch        chan auctionapi.Event
}

// Hub delivers events without ever blocking the publisher. Ordinary events are
// dropped for a subscriber whose buffer is full; settlement events are never
// silently dropped, so the slow subscriber is evicted instead.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[int]*Subscription
	nextID  int
	dropped int
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		subs: make(map[string]map[int]*Subscription),
		log:  log.WithField("component", "notify"),
	}
}

// Subscribe registers a subscriber for auctionID, or AllAuctions.
func (h *Hub) Subscribe(auctionID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan auctionapi.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{C: ch, id: h.nextID, auctionID: auctionID, ch: ch}
	if h.subs[auctionID] == nil {
		h.subs[auctionID] = make(map[int]*Subscription)
	}
	h.subs[auctionID][sub.id] = sub
	return sub
}

// Unsubscribe closes the subscription. Calling it twice, or after eviction, is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

func (h *Hub) Publish(topic string, evt auctionapi.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(h.subs[evt.AuctionID], evt)
	if evt.AuctionID != AllAuctions {
		h.deliver(h.subs[AllAuctions], evt)
	}
}

func (h *Hub) deliver(subs map[int]*Subscription, evt auctionapi.Event) {
	for _, sub := range subs {
		select {
		case sub.ch <- evt:
			continue
		default:
		}

		if evt.IsSettlement() {
			h.log.WithFields(logrus.Fields{"auction_id": evt.AuctionID, "topic": evt.Topic}).
				Warn("Evicting slow subscriber")
			h.remove(sub)
			continue
		}
		h.dropped++
	}
}

func (h *Hub) remove(sub *Subscription) {
	subs, ok := h.subs[sub.auctionID]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.subs, sub.auctionID)
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// Dropped returns how many ordinary events were dropped for slow subscribers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
