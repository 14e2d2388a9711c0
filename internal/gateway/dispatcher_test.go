package gateway

import (
	"sync"
	"testing"
)

// fakeSender records delivered events and can be told to fail.
type fakeSender struct {
	mu     sync.Mutex
	id     string
	events []*Event
	fail   error
}

func newFakeSender(id string) *fakeSender {
	return &fakeSender{id: id}
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSender) received() []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeSender) receivedOfType(eventType EventType) []*Event {
	var out []*Event
	for _, ev := range f.received() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// recordingSink captures events handed to the audit stream.
type recordingSink struct {
	mu     sync.Mutex
	events []*Event
}

func (s *recordingSink) Publish(event *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func TestDispatcherDeliversToAllTargets(t *testing.T) {
	d := NewBroadcastDispatcher(nil, newTestLogger())

	a, b := newFakeSender("a"), newFakeSender("b")
	event := NewEvent(EventNewMessage, "alice", nil)

	if got := d.Deliver(event, []Sender{a, b}); got != 2 {
		t.Errorf("Deliver() = %d; want 2", got)
	}
	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Error("not every target received the event")
	}
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	d := NewBroadcastDispatcher(nil, newTestLogger())

	dead := newFakeSender("dead")
	dead.fail = ErrConnectionClosed
	alive := newFakeSender("alive")

	event := NewEvent(EventNewMessage, "alice", nil)

	// The dead socket must not abort delivery to the remaining targets and
	// must not surface as an error.
	if got := d.Deliver(event, []Sender{dead, alive}); got != 1 {
		t.Errorf("Deliver() = %d; want 1", got)
	}
	if len(alive.received()) != 1 {
		t.Error("delivery to the healthy target was aborted by a dead one")
	}
}

func TestDispatcherUnicast(t *testing.T) {
	d := NewBroadcastDispatcher(nil, newTestLogger())

	target := newFakeSender("t")
	d.Unicast(NewErrorEvent("alice", CodeValidationError, "bad payload"), target)

	got := target.received()
	if len(got) != 1 || got[0].Type != EventError {
		t.Fatalf("Unicast delivered %v; want one error event", got)
	}
	if got[0].Data["code"] != CodeValidationError {
		t.Errorf("error code = %v; want %s", got[0].Data["code"], CodeValidationError)
	}
}

func TestDispatcherPublishesToSink(t *testing.T) {
	sink := &recordingSink{}
	d := NewBroadcastDispatcher(sink, newTestLogger())

	event := NewEvent(EventUserOnline, "alice", nil)
	d.Deliver(event, []Sender{newFakeSender("a"), newFakeSender("b")})

	// One audit record per dispatch, not per target.
	if len(sink.events) != 1 {
		t.Errorf("sink received %d events; want 1", len(sink.events))
	}

	// The audit stream sees every dispatch, including ones with no live
	// targets.
	d.Deliver(NewEvent(EventUserOffline, "alice", nil), nil)
	if len(sink.events) != 2 {
		t.Errorf("sink received %d events after an empty dispatch; want 2", len(sink.events))
	}
}
