package notify

import (
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/auctionapi"
)

// LogNotifier writes every event to the log.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogNotifier{log: log.WithField("component", "events")}
}

func (n *LogNotifier) Publish(topic string, evt auctionapi.Event) {
	fields := logrus.Fields{
		"topic":      topic,
		"auction_id": evt.AuctionID,
		"state":      evt.State,
	}
	if evt.BidID != "" {
		fields["bid_id"] = evt.BidID
	}
	if evt.CurrentPrice != "" {
		fields["current_price"] = evt.CurrentPrice
	}
	if evt.Outcome != "" {
		fields["outcome"] = evt.Outcome
	}
	if evt.IsSettlement() {
		n.log.WithFields(fields).Info("Event published")
		return
	}
	n.log.WithFields(fields).Debug("Event published")
}

// Multi publishes to each notifier in order.
type Multi []Notifier

func (m Multi) Publish(topic string, evt auctionapi.Event) {
	for _, n := range m {
		n.Publish(topic, evt)
	}
}
