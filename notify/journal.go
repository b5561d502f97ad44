package notify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
)

// DefaultJournalBuffer is the queue length used when none is given.
const DefaultJournalBuffer = 1024

// Journal appends every event to a file as a CBOR sequence, one item per event.
// Publish only queues the event; a single writer goroutine owns the file.
// Events that find the queue full are dropped and counted. Write failures are
// logged and never reach the publisher.
type Journal struct {
	mu     sync.RWMutex
	queue  chan auctionapi.Event
	closed bool
	done   chan struct{}

	w       io.WriteCloser
	enc     *cbor.Encoder
	failed  atomic.Int64
	dropped atomic.Int64
	log     *logrus.Entry
}

// OpenJournal opens path for appending, creating it if needed.
func OpenJournal(path string, buffer int, log *logrus.Entry) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return NewJournal(f, buffer, log), nil
}

func NewJournal(w io.WriteCloser, buffer int, log *logrus.Entry) *Journal {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	j := &Journal{
		queue: make(chan auctionapi.Event, buffer),
		done:  make(chan struct{}),
		w:     w,
		enc:   auctionapi.NewEncoder(w),
		log:   log.WithField("component", "journal"),
	}
	go j.run()
	return j
}

func (j *Journal) Publish(topic string, evt auctionapi.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return
	}
	select {
	case j.queue <- evt:
	default:
		j.dropped.Add(1)
		j.log.WithFields(logrus.Fields{"topic": topic, "auction_id": evt.AuctionID}).
			Warn("Journal queue full, dropping event")
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for evt := range j.queue {
		if err := j.enc.Encode(evt); err != nil {
			j.failed.Add(1)
			j.log.WithFields(logrus.Fields{"topic": evt.Topic, "auction_id": evt.AuctionID}).
				Errorf("Failed to append event: %v", err)
		}
	}
}

// Failed returns the number of events that could not be written.
func (j *Journal) Failed() int { return int(j.failed.Load()) }

// Dropped returns the number of events discarded because the queue was full.
func (j *Journal) Dropped() int { return int(j.dropped.Load()) }

// Close stops accepting events, writes out everything already queued and
// closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.w.Close()
}

// ReadJournal decodes every event in r. A truncated trailing item is reported
// together with the events read before it.
func ReadJournal(r io.Reader) ([]auctionapi.Event, error) {
	dec := auctionapi.NewDecoder(r)
	var events []auctionapi.Event
	for {
		var evt auctionapi.Event
		err := dec.Decode(&evt)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("read journal entry %d: %w", len(events)+1, err)
		}
		events = append(events, evt)
	}
}
