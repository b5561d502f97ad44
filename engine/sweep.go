package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/openbid/core"
)

const (
	DefaultSweepInterval = 15 * time.Second
	DefaultSweepBatch    = 500

	sweepParallelism = 16
)

// SweepStats summarizes one pass.
type SweepStats struct {
	Candidates int
	Closed     int
	Failed     int
}

// Sweep periodically closes auctions whose end time has passed. Each close is
// submitted to the auction's sequencer, so a sweep never races a bid on the
// same auction.
type Sweep struct {
	engine   *Engine
	interval time.Duration
	batch    int
	log      *logrus.Entry
}

func NewSweep(e *Engine, interval time.Duration, batch int) *Sweep {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	return &Sweep{
		engine:   e,
		interval: interval,
		batch:    batch,
		log:      e.log.WithField("component", "sweep"),
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweep) Run(ctx context.Context) {
	s.log.WithFields(logrus.Fields{"interval": s.interval, "batch": s.batch}).Info("Expiry sweep started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorf("Sweep pass failed: %v", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("Expiry sweep stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce closes every auction expired at the start of the pass, a page at a
// time. A page that closes nothing ends the pass so a stuck auction cannot spin it.
func (s *Sweep) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.engine.Now()

	for {
		ids, err := s.engine.ListExpiredCandidates(ctx, now, s.batch)
		if err != nil {
			return stats, err
		}
		if len(ids) == 0 {
			break
		}
		stats.Candidates += len(ids)

		closed, failed, err := s.closeBatch(ctx, ids)
		stats.Closed += closed
		stats.Failed += failed
		if err != nil {
			return stats, err
		}
		if closed == 0 || len(ids) < s.batch {
			break
		}
	}

	if stats.Candidates > 0 {
		s.log.WithFields(logrus.Fields{
			"candidates": stats.Candidates,
			"closed":     stats.Closed,
			"failed":     stats.Failed,
		}).Info("Sweep pass complete")
	}
	return stats, nil
}

func (s *Sweep) closeBatch(ctx context.Context, ids []string) (int, int, error) {
	results := make([]bool, len(ids))
	failures := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for i, id := range ids {
		g.Go(func() error {
			_, closed, err := s.engine.CloseIfExpired(gctx, id)
			switch {
			case errors.Is(err, core.ErrUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				// one bad auction must not stop the rest of the page
				s.log.WithField("auction_id", id).Errorf("Failed to close auction: %v", err)
				failures[i] = true
			default:
				results[i] = closed
			}
			return nil
		})
	}
	err := g.Wait()

	closed, failed := 0, 0
	for i := range ids {
		if results[i] {
			closed++
		}
		if failures[i] {
			failed++
		}
	}
	return closed, failed, err
}
