package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
	"github.com/cloudx-io/openbid/store"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []auctionapi.Event
}

func (n *recordingNotifier) Publish(topic string, evt auctionapi.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) Topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Topic
	}
	return out
}

func (n *recordingNotifier) Last(topic string) (auctionapi.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Topic == topic {
			return n.events[i], true
		}
	}
	return auctionapi.Event{}, false
}

func (n *recordingNotifier) Count(topic string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Topic == topic {
			c++
		}
	}
	return c
}

// flakyStore injects failures in front of a MemoryStore.
type flakyStore struct {
	*store.MemoryStore

	mu        sync.Mutex
	conflicts int   // CompareAndSwap calls to fail with a version conflict
	failWith  error // returned by every CompareAndSwap when set
	casCalls  int
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, expected int64, next *core.Auction, writes core.BidWrites) error {
	s.mu.Lock()
	s.casCalls++
	if s.failWith != nil {
		err := s.failWith
		s.mu.Unlock()
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return core.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.MemoryStore.CompareAndSwap(ctx, expected, next, writes)
}

func (s *flakyStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casCalls
}

type stubIssuer struct {
	mu      sync.Mutex
	issued  []core.Settlement
	bidSets [][]core.Bid
	err     error
}

func (i *stubIssuer) Issue(_ context.Context, a *core.Auction, s core.Settlement, bids []core.Bid) (*auctionapi.SettlementReceipt, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return nil, i.err
	}
	i.issued = append(i.issued, s)
	i.bidSets = append(i.bidSets, bids)
	return &auctionapi.SettlementReceipt{Signer: auctionapi.SignerKey, KeyID: "test", COSEBase64: auctionapi.ReceiptCOSEBase64("receipt-" + a.ID)}, nil
}

func (i *stubIssuer) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.issued)
}

type harness struct {
	engine   *Engine
	store    *flakyStore
	clock    *fakeClock
	notifier *recordingNotifier
	issuer   *stubIssuer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	h := &harness{
		store:    &flakyStore{MemoryStore: store.NewMemoryStore()},
		clock:    newFakeClock(testNow),
		notifier: &recordingNotifier{},
		issuer:   &stubIssuer{},
	}
	base := []Option{
		WithClock(h.clock),
		WithLogger(logrus.NewEntry(log)),
		WithReceiptIssuer(h.issuer),
	}
	h.engine = New(h.store, h.store, h.notifier, append(base, opts...)...)
	t.Cleanup(h.engine.Close)
	return h
}

// listing is an auction that is already open: starting 1000, increment 100,
// ends in 3 minutes, 5s extension window, 2m extension length.
func listing() CreateAuctionRequest {
	return CreateAuctionRequest{
		SellerID:          "seller",
		Lot:               core.Lot{ItemID: "item-1", Quantity: 1},
		StartingPrice:     dec("1000"),
		MinBidIncrement:   dec("100"),
		StartTime:         testNow.Add(-time.Minute),
		EndTime:           testNow.Add(3 * time.Minute),
		ExtensionWindow:   5 * time.Second,
		ExtensionLength:   2 * time.Minute,
		AutoExtendEnabled: true,
	}
}

func (h *harness) create(t *testing.T, mutate ...func(*CreateAuctionRequest)) *core.Auction {
	t.Helper()
	req := listing()
	for _, m := range mutate {
		m(&req)
	}
	a, err := h.engine.CreateAuction(context.Background(), req)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func (h *harness) bid(auctionID, bidder, amount string) (*BidResult, error) {
	return h.engine.PlaceBid(context.Background(), PlaceBidRequest{
		AuctionID: auctionID,
		BidderID:  bidder,
		Amount:    dec(amount),
	})
}

func (h *harness) stored(t *testing.T, id string) *core.Auction {
	t.Helper()
	a, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get auction: %v", err)
	}
	return a
}

func (h *harness) winners(t *testing.T, id string) []core.Bid {
	t.Helper()
	bids, err := h.store.ListByAuction(context.Background(), id, false)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	var out []core.Bid
	for _, b := range bids {
		if b.IsWinning {
			out = append(out, b)
		}
	}
	return out
}

var errDiskGone = errors.New("disk gone")
