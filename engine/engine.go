// Package engine serializes auction commands per auction and drives admission,
// buy-now, cancellation, retraction and settlement against the store.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/core"
)

// AuctionStore is the transactional auction record store.
type AuctionStore interface {
	Create(ctx context.Context, a *core.Auction) error
	Get(ctx context.Context, id string) (*core.Auction, error)
	// CompareAndSwap writes next and applies writes as one unit, only if the
	// stored version equals expectedVersion. Returns core.ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, expectedVersion int64, next *core.Auction, writes core.BidWrites) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// BidLedger reads the bid history. Writes go through AuctionStore.CompareAndSwap.
type BidLedger interface {
	GetBid(ctx context.Context, bidID string) (*core.Bid, error)
	ListByAuction(ctx context.Context, auctionID string, excludeRetracted bool) ([]core.Bid, error)
}

// Notifier receives committed events. Publish must not block.
type Notifier interface {
	Publish(topic string, event auctionapi.Event)
}

// ReceiptIssuer signs settlement receipts.
type ReceiptIssuer interface {
	Issue(ctx context.Context, a *core.Auction, s core.Settlement, bids []core.Bid) (*auctionapi.SettlementReceipt, error)
}

// Clock is the engine's only source of time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

const (
	DefaultMaxCASRetries = 3
	DefaultIdleTimeout   = 2 * time.Minute
	DefaultInboxSize     = 256
)

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(log *logrus.Entry) Option { return func(e *Engine) { e.log = log } }

func WithReceiptIssuer(r ReceiptIssuer) Option { return func(e *Engine) { e.receipts = r } }

func WithMaxCASRetries(n int) Option { return func(e *Engine) { e.maxRetries = n } }

func WithIdleTimeout(d time.Duration) Option { return func(e *Engine) { e.idleTimeout = d } }

func WithInboxSize(n int) Option { return func(e *Engine) { e.inboxSize = n } }

// WithIDGenerator replaces uuid generation for auction and bid ids.
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

type Engine struct {
	store    AuctionStore
	bids     BidLedger
	notifier Notifier
	receipts ReceiptIssuer
	clock    Clock
	watches  *WatchRegistry
	seq      *sequencer
	log      *logrus.Entry

	maxRetries  int
	idleTimeout time.Duration
	inboxSize   int
	newID       func() string
}

func New(store AuctionStore, bids BidLedger, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		bids:        bids,
		notifier:    notifier,
		clock:       systemClock{},
		watches:     NewWatchRegistry(),
		maxRetries:  DefaultMaxCASRetries,
		idleTimeout: DefaultIdleTimeout,
		inboxSize:   DefaultInboxSize,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("component", "engine")
	e.seq = newSequencer(e.inboxSize, e.idleTimeout, e.log.WithField("component", "sequencer"))
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Close stops the sequencer. Queued commands fail with UNAVAILABLE.
func (e *Engine) Close() {
	e.seq.Close()
	e.log.Info("Engine closed")
}

type CreateAuctionRequest core.ListingParams

type PlaceBidRequest struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	MaxBid    decimal.NullDecimal
}

type BidResult struct {
	Bid      *core.Bid
	Auction  *core.Auction
	Extended bool
}

type RetractResult struct {
	Bid       *core.Bid
	Auction   *core.Auction
	NewLeader *core.Bid
}

// AuctionView is a read-only snapshot for display.
type AuctionView struct {
	Auction       *core.Auction
	TimeRemaining time.Duration
}

// CreateAuction validates and stores a new auction. It does not enter the
// sequencer: no other command can reference the id before it exists.
func (e *Engine) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*core.Auction, error) {
	now := e.clock.Now()
	a, err := core.NewAuction(e.newID(), e.displayNumber(now), core.ListingParams(req), now)
	if err != nil {
		e.log.WithField("seller_id", req.SellerID).Debugf("Listing rejected: %v", err)
		return nil, err
	}
	if err := e.store.Create(ctx, a); err != nil {
		e.log.WithField("auction_id", a.ID).Errorf("Failed to store auction: %v", err)
		return nil, core.PersistenceError("create auction", err)
	}

	e.log.WithFields(logrus.Fields{"auction_id": a.ID, "number": a.Number, "state": a.State}).Info("Auction created")
	if a.State == core.StateActive {
		e.publish(core.TopicAuctionActivated, e.auctionEvent(core.TopicAuctionActivated, a, now))
	}
	return a, nil
}

// displayNumber formats AUC-<yyyymmdd>-<6 hex>.
func (e *Engine) displayNumber(now time.Time) string {
	id := uuid.New()
	return "AUC-" + now.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[:3]))
}

// PublishAuction moves a draft to SCHEDULED, or ACTIVE when its start has passed.
func (e *Engine) PublishAuction(ctx context.Context, auctionID, sellerID string) (*core.Auction, error) {
	return submit(ctx, e.seq, auctionID, func(ctx context.Context) (*core.Auction, error) {
		var now time.Time
		a, err := e.apply(ctx, auctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			now = at
			if a.SellerID != sellerID {
				return core.BidWrites{}, core.Errorf(core.CodeForbidden, "only the seller can publish this auction")
			}
			return core.BidWrites{}, a.Publish(at)
		})
		if err != nil {
			return nil, err
		}
		if a.State == core.StateActive {
			e.publish(core.TopicAuctionActivated, e.auctionEvent(core.TopicAuctionActivated, a, now))
		}
		return a, nil
	})
}

// PlaceBid admits a bid through the auction's sequencer.
func (e *Engine) PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error) {
	return submit(ctx, e.seq, req.AuctionID, func(ctx context.Context) (*BidResult, error) {
		var (
			adm       *core.Admission
			activated bool
			now       time.Time
		)
		a, err := e.apply(ctx, req.AuctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			now = at
			activated = a.ActivateIfDue(at)
			var err error
			adm, err = core.AdmitBid(a, e.newID(), core.BidRequest{
				BidderID: req.BidderID,
				Amount:   req.Amount,
				MaxBid:   req.MaxBid,
			}, at)
			if err != nil {
				return core.BidWrites{}, err
			}
			return adm.Writes, nil
		})
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"auction_id": req.AuctionID,
				"bidder_id":  req.BidderID,
				"amount":     req.Amount.String(),
				"code":       core.CodeOf(err),
			}).Debugf("Bid rejected: %v", err)
			return nil, err
		}

		if activated {
			e.publish(core.TopicAuctionActivated, e.auctionEvent(core.TopicAuctionActivated, a, now))
		}

		evt := e.auctionEvent(core.TopicBidPlaced, a, now)
		evt.BidID = adm.Bid.ID
		evt.BidderID = adm.Bid.BidderID
		evt.Amount = adm.Bid.Amount.String()
		evt.Extended = adm.Extended
		if adm.Extended {
			end := a.EndTime
			evt.EndTime = &end
		}
		e.publish(core.TopicBidPlaced, evt)

		e.log.WithFields(logrus.Fields{
			"auction_id": a.ID,
			"bid_id":     adm.Bid.ID,
			"amount":     adm.Bid.Amount.String(),
			"extended":   adm.Extended,
		}).Debug("Bid accepted")
		return &BidResult{Bid: adm.Bid, Auction: a, Extended: adm.Extended}, nil
	})
}

// BuyNow closes the auction at its buy-now price.
func (e *Engine) BuyNow(ctx context.Context, auctionID, buyerID string) (*BidResult, error) {
	return submit(ctx, e.seq, auctionID, func(ctx context.Context) (*BidResult, error) {
		var adm *core.Admission
		a, err := e.apply(ctx, auctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			a.ActivateIfDue(at)
			var err error
			adm, err = core.AdmitBuyNow(a, e.newID(), buyerID, at)
			if err != nil {
				return core.BidWrites{}, err
			}
			return adm.Writes, nil
		})
		if err != nil {
			e.log.WithFields(logrus.Fields{"auction_id": auctionID, "buyer_id": buyerID}).Debugf("Buy now rejected: %v", err)
			return nil, err
		}

		e.settled(ctx, a, core.BuyNowSettlement(adm.Bid))
		return &BidResult{Bid: adm.Bid, Auction: a}, nil
	})
}

// CancelAuction cancels a draft or scheduled auction without bids.
func (e *Engine) CancelAuction(ctx context.Context, auctionID, sellerID string) (*core.Auction, error) {
	return submit(ctx, e.seq, auctionID, func(ctx context.Context) (*core.Auction, error) {
		var now time.Time
		a, err := e.apply(ctx, auctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			now = at
			a.ActivateIfDue(at)
			return core.BidWrites{}, a.Cancel(sellerID)
		})
		if err != nil {
			return nil, err
		}

		evt := e.auctionEvent(core.TopicAuctionCancelled, a, now)
		evt.Outcome = string(core.OutcomeCancelled)
		e.publish(core.TopicAuctionCancelled, evt)
		e.log.WithField("auction_id", a.ID).Info("Auction cancelled")
		return a, nil
	})
}

// RetractBid soft-cancels a bid. Retracting an already retracted bid returns
// it unchanged.
func (e *Engine) RetractBid(ctx context.Context, auctionID, bidID, bidderID string) (*RetractResult, error) {
	return submit(ctx, e.seq, auctionID, func(ctx context.Context) (*RetractResult, error) {
		var (
			r   *core.Retraction
			now time.Time
		)
		a, err := e.apply(ctx, auctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			now = at
			a.ActivateIfDue(at)
			bids, err := e.bids.ListByAuction(ctx, auctionID, false)
			if err != nil {
				return core.BidWrites{}, core.PersistenceError("load bids", err)
			}
			r, err = core.RetractBid(a, bids, bidID, bidderID, at)
			if err != nil {
				return core.BidWrites{}, err
			}
			if r.NoOp {
				return core.BidWrites{}, errNoChange
			}
			return r.Writes, nil
		})
		if err != nil {
			return nil, err
		}
		if r.NoOp {
			return &RetractResult{Bid: r.Bid, Auction: a}, nil
		}

		evt := e.auctionEvent(core.TopicBidRetracted, a, now)
		evt.BidID = r.Bid.ID
		evt.BidderID = r.Bid.BidderID
		e.publish(core.TopicBidRetracted, evt)

		e.log.WithFields(logrus.Fields{"auction_id": a.ID, "bid_id": r.Bid.ID, "leading_bid_id": a.LeadingBidID}).Info("Bid retracted")
		return &RetractResult{Bid: r.Bid, Auction: a, NewLeader: r.NewLeader}, nil
	})
}

// CloseIfExpired settles the auction if its end time has passed. closed is
// true only for the call that performed the settlement; later calls return
// the terminal auction unchanged.
func (e *Engine) CloseIfExpired(ctx context.Context, auctionID string) (*core.Auction, bool, error) {
	type outcome struct {
		auction *core.Auction
		closed  bool
	}
	o, err := submit(ctx, e.seq, auctionID, func(ctx context.Context) (outcome, error) {
		var settlement *core.Settlement
		a, err := e.apply(ctx, auctionID, func(a *core.Auction, at time.Time) (core.BidWrites, error) {
			settlement = nil
			if a.State.IsTerminal() || !a.IsExpiredAt(at) {
				return core.BidWrites{}, errNoChange
			}

			var leading *core.Bid
			if a.LeadingBidID != "" {
				b, err := e.bids.GetBid(ctx, a.LeadingBidID)
				if err != nil && !errors.Is(err, core.ErrNotFound) {
					return core.BidWrites{}, core.PersistenceError("load leading bid", err)
				}
				leading = b
			}

			s, err := core.RunSettlement(a, leading, at)
			if err != nil {
				return core.BidWrites{}, err
			}
			if s == nil {
				return core.BidWrites{}, errNoChange
			}
			settlement = s

			var writes core.BidWrites
			if s.WinningBid == nil && leading != nil && leading.IsWinning {
				// reserve not met: nobody holds the winning flag after close
				writes.Updates = append(writes.Updates, core.BidFlagUpdate{BidID: leading.ID, IsWinning: boolPtr(false)})
			}
			return writes, nil
		})
		if err != nil {
			return outcome{}, err
		}
		if settlement == nil {
			return outcome{auction: a}, nil
		}

		e.settled(ctx, a, *settlement)
		return outcome{auction: a, closed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return o.auction, o.closed, nil
}

// GetAuction returns the auction with the registry's watcher count and the
// time remaining on the engine clock. It never enters the sequencer.
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (*AuctionView, error) {
	a, err := e.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	a.ActivateIfDue(now)
	a.WatcherCount = e.watches.Count(auctionID)
	return &AuctionView{Auction: a, TimeRemaining: a.TimeRemaining(now)}, nil
}

// GetBidHistory lists the auction's bids in admission order.
func (e *Engine) GetBidHistory(ctx context.Context, auctionID string, includeRetracted bool) ([]core.Bid, error) {
	if _, err := e.load(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := e.bids.ListByAuction(ctx, auctionID, !includeRetracted)
	if err != nil {
		return nil, core.PersistenceError("load bids", err)
	}
	return bids, nil
}

// ToggleWatch flips the user's watch on the auction.
func (e *Engine) ToggleWatch(ctx context.Context, auctionID, userID string) (bool, int, error) {
	if userID == "" {
		return false, 0, core.Errorf(core.CodeInvalidRequest, "user id is required")
	}
	if _, err := e.load(ctx, auctionID); err != nil {
		return false, 0, err
	}
	watching, count := e.watches.Toggle(auctionID, userID)
	return watching, count, nil
}

// ListExpiredCandidates returns ids of auctions whose end time is at or before now.
func (e *Engine) ListExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := e.store.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, core.PersistenceError("list expired auctions", err)
	}
	return ids, nil
}

// errNoChange tells apply that the command succeeded without anything to persist.
var errNoChange = errors.New("no change")

// apply loads the auction, lets fn mutate a copy, and persists it with a
// compare-and-swap. Version conflicts are retried up to maxRetries times and
// then reported as PERSISTENCE_UNAVAILABLE.
func (e *Engine) apply(ctx context.Context, auctionID string, fn func(a *core.Auction, now time.Time) (core.BidWrites, error)) (*core.Auction, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		stored, err := e.load(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		next := stored.Clone()
		now := e.clock.Now()
		writes, err := fn(next, now)
		if errors.Is(err, errNoChange) {
			return stored, nil
		}
		if err != nil {
			return nil, err
		}

		next.UpdatedAt = now
		err = e.store.CompareAndSwap(ctx, stored.Version, next, writes)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			e.log.WithField("auction_id", auctionID).Errorf("Failed to persist auction: %v", err)
			return nil, core.PersistenceError("save auction", err)
		}

		lastErr = err
		e.log.WithFields(logrus.Fields{"auction_id": auctionID, "attempt": attempt + 1}).Warn("Version conflict, retrying")
	}

	e.log.WithField("auction_id", auctionID).Errorf("Giving up after %d version conflicts", e.maxRetries+1)
	return nil, core.PersistenceError("save auction", lastErr)
}

func (e *Engine) load(ctx context.Context, auctionID string) (*core.Auction, error) {
	if auctionID == "" {
		return nil, core.Errorf(core.CodeInvalidRequest, "auction id is required")
	}
	a, err := e.store.Get(ctx, auctionID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.Errorf(core.CodeNotFound, "auction %s not found", auctionID)
	}
	if err != nil {
		e.log.WithField("auction_id", auctionID).Errorf("Failed to load auction: %v", err)
		return nil, core.PersistenceError("load auction", err)
	}
	return a, nil
}

// settled issues a receipt (when configured) and announces the terminal state.
// Receipt failures are logged; the settlement itself is already committed.
func (e *Engine) settled(ctx context.Context, a *core.Auction, s core.Settlement) {
	topic := core.TopicAuctionEnded
	if s.State == core.StateSold {
		topic = core.TopicAuctionSold
	}

	evt := e.auctionEvent(topic, a, e.clock.Now())
	evt.Outcome = string(s.Outcome)
	evt.WinningBidID = a.WinningBidID
	if s.WinningBid != nil || !s.FinalPrice.IsZero() {
		evt.FinalPrice = s.FinalPrice.String()
	}

	if e.receipts != nil {
		bids, err := e.bids.ListByAuction(ctx, a.ID, false)
		if err != nil {
			e.log.WithField("auction_id", a.ID).Errorf("Failed to load bids for receipt: %v", err)
		} else if r, err := e.receipts.Issue(ctx, a, s, bids); err != nil {
			e.log.WithField("auction_id", a.ID).Errorf("Failed to issue settlement receipt: %v", err)
		} else {
			evt.Receipt = r
		}
	}

	e.publish(topic, evt)
	e.log.WithFields(logrus.Fields{
		"auction_id":     a.ID,
		"state":          a.State,
		"outcome":        s.Outcome,
		"winning_bid_id": a.WinningBidID,
		"final_price":    s.FinalPrice.String(),
	}).Info("Auction settled")
}

func (e *Engine) auctionEvent(topic string, a *core.Auction, now time.Time) auctionapi.Event {
	return auctionapi.Event{
		Topic:        topic,
		AuctionID:    a.ID,
		State:        string(a.State),
		CurrentPrice: a.CurrentPrice.String(),
		LeadingBidID: a.LeadingBidID,
		OccurredAt:   now,
	}
}

// publish hands the event to the notifier. A misbehaving notifier never fails
// the command that produced the event.
func (e *Engine) publish(topic string, evt auctionapi.Event) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("topic", topic).Errorf("Panic recovered in notifier: %v", r)
		}
	}()
	e.notifier.Publish(topic, evt)
}

func boolPtr(b bool) *bool { return &b }
