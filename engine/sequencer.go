package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/core"
)

type result struct {
	value any
	err   error
}

type command struct {
	ctx   context.Context
	run   func(ctx context.Context) (any, error)
	reply chan result // buffered, so a caller that gave up never blocks the actor
}

// actor owns one auction id. Commands for that id run one at a time in inbox order.
type actor struct {
	id    string
	inbox chan *command
	quit  chan struct{}

	// pending counts senders that looked the actor up and have not finished
	// their send. It is raised under the registry lock, so retire sees it.
	pending atomic.Int32
	senders sync.WaitGroup
}

// sequencer routes commands to per-auction actors, creating them on first use
// and retiring them after idleTimeout with an empty inbox.
//
// The registry lock only covers lookup and creation. Senders block on a full
// inbox without it, so a busy auction never holds up another one.
type sequencer struct {
	mu     sync.Mutex
	actors map[string]*actor
	closed atomic.Bool
	wg     sync.WaitGroup

	inboxSize   int
	idleTimeout time.Duration
	log         *logrus.Entry
}

func newSequencer(inboxSize int, idleTimeout time.Duration, log *logrus.Entry) *sequencer {
	return &sequencer{
		actors:      make(map[string]*actor),
		inboxSize:   inboxSize,
		idleTimeout: idleTimeout,
		log:         log,
	}
}

// submit runs fn on the actor for id and waits for its result. If ctx ends first
// the caller stops waiting, but fn still runs to completion with a context
// detached from the caller's cancellation.
func submit[T any](ctx context.Context, s *sequencer, id string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cmd := &command{
		ctx: context.WithoutCancel(ctx),
		run: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		reply: make(chan result, 1),
	}

	if err := s.enqueue(ctx, id, cmd); err != nil {
		return zero, err
	}

	select {
	case r := <-cmd.reply:
		if r.err != nil {
			return zero, r.err
		}
		return r.value.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *sequencer) enqueue(ctx context.Context, id string, cmd *command) error {
	a, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer a.release()

	select {
	case <-a.quit:
		return core.ErrUnavailable
	default:
	}
	select {
	case a.inbox <- cmd:
		return nil
	case <-a.quit:
		return core.ErrUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire returns the live actor for id, starting one if needed, and marks a
// send as pending on it.
func (s *sequencer) acquire(id string) (*actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, core.ErrUnavailable
	}
	a, ok := s.actors[id]
	if !ok {
		a = &actor{
			id:    id,
			inbox: make(chan *command, s.inboxSize),
			quit:  make(chan struct{}),
		}
		s.actors[id] = a
		s.wg.Add(1)
		go s.loop(a)
	}
	a.pending.Add(1)
	a.senders.Add(1)
	return a, nil
}

func (a *actor) release() {
	a.pending.Add(-1)
	a.senders.Done()
}

func (s *sequencer) loop(a *actor) {
	defer s.wg.Done()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd := <-a.inbox:
			s.execute(a, cmd)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)

		case <-a.quit:
			s.drain(a)
			return

		case <-idle.C:
			if s.retire(a) {
				return
			}
			idle.Reset(s.idleTimeout)
		}
	}
}

func (s *sequencer) execute(a *actor, cmd *command) {
	if s.closed.Load() {
		cmd.reply <- result{err: core.ErrUnavailable}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("auction_id", a.id).Errorf("Panic recovered in sequencer: %v", r)
			cmd.reply <- result{err: core.PersistenceError("command", fmt.Errorf("panic: %v", r))}
		}
	}()

	value, err := cmd.run(cmd.ctx)
	cmd.reply <- result{value: value, err: err}
}

// retire removes an idle actor. It fails while a sender is pending or the
// inbox holds commands.
func (s *sequencer) retire(a *actor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.pending.Load() > 0 || len(a.inbox) > 0 {
		return false
	}
	delete(s.actors, a.id)
	return true
}

func (s *sequencer) drain(a *actor) {
	for {
		select {
		case cmd := <-a.inbox:
			cmd.reply <- result{err: core.ErrUnavailable}
		default:
			return
		}
	}
}

// Close stops accepting commands, fails queued ones with UNAVAILABLE and waits
// for in-flight commands to finish.
func (s *sequencer) Close() {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return
	}
	actors := s.actors
	for _, a := range actors {
		close(a.quit)
	}
	s.actors = make(map[string]*actor)
	s.mu.Unlock()

	s.wg.Wait()

	// a sender racing the quit signal may still land in a drained inbox
	for _, a := range actors {
		a.senders.Wait()
		s.drain(a)
	}
}

// active reports the number of live actors.
func (s *sequencer) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}
