package auctionapi

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/openbid/core"
)

// TopicHeartbeat marks the keep-alive lines written to idle subscription streams.
const TopicHeartbeat = "heartbeat"

// Event is the notification envelope published after a committed state change.
// Prices are decimal strings.
type Event struct {
	Topic        string             `cbor:"topic" json:"topic"`
	AuctionID    string             `cbor:"auction_id" json:"auction_id"`
	State        string             `cbor:"state" json:"state"`
	BidID        string             `cbor:"bid_id,omitempty" json:"bid_id,omitempty"`
	BidderID     string             `cbor:"bidder_id,omitempty" json:"bidder_id,omitempty"`
	Amount       string             `cbor:"amount,omitempty" json:"amount,omitempty"`
	CurrentPrice string             `cbor:"current_price,omitempty" json:"current_price,omitempty"`
	LeadingBidID string             `cbor:"leading_bid_id,omitempty" json:"leading_bid_id,omitempty"`
	Extended     bool               `cbor:"extended,omitempty" json:"extended,omitempty"`
	EndTime      *time.Time         `cbor:"end_time,omitempty" json:"end_time,omitempty"`
	Outcome      string             `cbor:"outcome,omitempty" json:"outcome,omitempty"`
	WinningBidID string             `cbor:"winning_bid_id,omitempty" json:"winning_bid_id,omitempty"`
	FinalPrice   string             `cbor:"final_price,omitempty" json:"final_price,omitempty"`
	Receipt      *SettlementReceipt `cbor:"receipt,omitempty" json:"receipt,omitempty"`
	OccurredAt   time.Time          `cbor:"occurred_at" json:"occurred_at"`
}

// Times are written as RFC 3339 strings so no precision is lost.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// EncodeEvent serializes an event as CBOR.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a CBOR event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := decMode.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// IsSettlement reports whether the event announces a terminal state.
func (e Event) IsSettlement() bool {
	switch e.Topic {
	case core.TopicAuctionSold, core.TopicAuctionEnded, core.TopicAuctionCancelled:
		return true
	}
	return false
}

// Marshal encodes v with the package's canonical CBOR options.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder and NewDecoder stream CBOR sequences, one item per event.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
