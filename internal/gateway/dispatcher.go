package gateway

import (
	"encoding/json"
	"log/slog"
)

// Sender is one deliverable connection. The websocket Client implements it;
// tests substitute in-memory fakes.
type Sender interface {
	ID() string
	Send(event *Event) error
}

// EventSink receives a copy of every event the dispatcher processes, even
// when the target set is empty. The Kafka audit publisher implements it.
type EventSink interface {
	Publish(event *Event)
}

// BroadcastDispatcher delivers an event to a set of connections, isolating
// failures per connection: a dead or slow socket is logged and skipped, it
// never aborts the remaining deliveries and never surfaces to the caller.
type BroadcastDispatcher struct {
	sink   EventSink
	logger *slog.Logger
}

// NewBroadcastDispatcher creates a dispatcher. sink may be nil when no audit
// stream is configured.
func NewBroadcastDispatcher(sink EventSink, logger *slog.Logger) *BroadcastDispatcher {
	return &BroadcastDispatcher{
		sink:   sink,
		logger: logger.With("component", "broadcast_dispatcher"),
	}
}

// Deliver attempts delivery to each target independently and returns the
// number of successful deliveries.
func (d *BroadcastDispatcher) Deliver(event *Event, targets []Sender) int {
	delivered := 0
	for _, target := range targets {
		if err := d.send(event, target); err == nil {
			delivered++
		}
	}

	if d.sink != nil {
		d.sink.Publish(event)
	}

	d.logger.Debug("event dispatched",
		"type", event.Type, "targets", len(targets), "delivered", delivered)
	return delivered
}

// Unicast is Deliver with a singleton target set.
func (d *BroadcastDispatcher) Unicast(event *Event, target Sender) {
	d.Deliver(event, []Sender{target})
}

func (d *BroadcastDispatcher) send(event *Event, target Sender) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic delivering event", "connID", target.ID(), "panic", r)
			err = ErrConnectionClosed
		}
	}()

	if err = target.Send(event); err != nil {
		d.logger.Warn("delivery failed",
			"connID", target.ID(), "type", event.Type, "error", err)
	}
	return err
}

// encodeEvent is the single place outbound frames are serialized.
func encodeEvent(event *Event) ([]byte, error) {
	return json.Marshal(event)
}
