package docstore

import "sync"

// Event is one delivery on a subscription: either a full replacement
// snapshot of the collection or an error. Errors do not end the stream.
type Event struct {
	Docs []Document
	Err  error
}

// Subscription is a cancellable snapshot stream for one collection.
// Store implementations create one with NewSubscription and feed it with
// Push; consumers range over Events and call Cancel on teardown.
type Subscription struct {
	mu     sync.Mutex
	events chan Event
	cancel func(*Subscription)
	closed bool
}

// NewSubscription builds a subscription. cancel, if non-nil, runs once when
// the consumer cancels, before the stream closes.
func NewSubscription(cancel func(*Subscription)) *Subscription {
	// Capacity one: a consumer that falls behind only ever sees the latest
	// snapshot, intermediates are dropped.
	return &Subscription{events: make(chan Event, 1), cancel: cancel}
}

// Events returns the snapshot stream. The channel is closed by Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Push replaces any undelivered event with ev. After Cancel it is a no-op.
func (s *Subscription) Push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.events:
	default:
	}
	s.events <- ev
}

// Cancel detaches the subscription and closes the stream. Safe to call any
// number of times, including when nothing was ever delivered.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel(s)
	}
	close(s.events)
}
