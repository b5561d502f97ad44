package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"pgregory.net/rapid"

	"github.com/cloudx-io/openbid/core"
	"github.com/cloudx-io/openbid/store"
)

// Random mixes of bids, retractions and clock moves through the engine keep the
// price monotonic, at most one winning bid, and settle exactly once.
func TestProperty_EngineInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log := logrus.New()
		log.SetLevel(logrus.PanicLevel)
		mem := store.NewMemoryStore()
		clock := newFakeClock(testNow)
		notifier := &recordingNotifier{}
		e := New(mem, mem, notifier, WithClock(clock), WithLogger(logrus.NewEntry(log)))
		defer e.Close()

		ctx := context.Background()
		a, err := e.CreateAuction(ctx, listing())
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		price := a.CurrentPrice
		var placed []*core.Bid
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				clock.Advance(time.Duration(rapid.Int64Range(0, 90).Draw(rt, "advanceSec")) * time.Second)
			case 1:
				if len(placed) == 0 {
					continue
				}
				b := placed[rapid.IntRange(0, len(placed)-1).Draw(rt, "victim")]
				_, _ = e.RetractBid(ctx, a.ID, b.ID, b.BidderID)
			case 2:
				_, _, err := e.CloseIfExpired(ctx, a.ID)
				if err != nil {
					rt.Fatalf("close: %v", err)
				}
			default:
				offset := rapid.Int64Range(-50, 400).Draw(rt, "offset")
				bidder := fmt.Sprintf("bidder-%d", rapid.IntRange(0, 3).Draw(rt, "bidder"))
				res, err := e.PlaceBid(ctx, PlaceBidRequest{
					AuctionID: a.ID,
					BidderID:  bidder,
					Amount:    price.Add(dec("100")).Add(dec(fmt.Sprint(offset))),
				})
				if err == nil {
					placed = append(placed, res.Bid)
				}
			}

			cur, err := mem.Get(ctx, a.ID)
			if err != nil {
				rt.Fatalf("get: %v", err)
			}
			if cur.CurrentPrice.LessThan(price) {
				rt.Fatalf("price decreased: %s -> %s", price, cur.CurrentPrice)
			}
			price = cur.CurrentPrice

			bids, _ := mem.ListByAuction(ctx, a.ID, false)
			winners := 0
			for _, b := range bids {
				if b.IsWinning {
					winners++
				}
			}
			if winners > 1 {
				rt.Fatalf("%d winning bids", winners)
			}
		}

		clock.Advance(24 * time.Hour)
		if _, _, err := e.CloseIfExpired(ctx, a.ID); err != nil {
			rt.Fatalf("final close: %v", err)
		}
		if _, _, err := e.CloseIfExpired(ctx, a.ID); err != nil {
			rt.Fatalf("repeat close: %v", err)
		}
		settlements := notifier.Count(core.TopicAuctionSold) + notifier.Count(core.TopicAuctionEnded)
		if settlements != 1 {
			rt.Fatalf("expected one settlement event, got %d", settlements)
		}
	})
}
