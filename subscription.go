package appbus

import "sync/atomic"

// Subscription is the caller-owned handle for one registration on a Bus.
// Unsubscribe removes exactly that registration and may be called any number
// of times, including after the bus was destroyed.
type Subscription struct {
	id     uint64
	kind   Kind // empty for unfiltered subscriptions
	fn     Callback
	bus    *Bus
	active atomic.Bool
}

// ID returns the bus-unique subscription identifier.
func (s *Subscription) ID() uint64 { return s.id }

// Kind returns the filtered kind, or "" for an unfiltered subscription.
func (s *Subscription) Kind() Kind { return s.kind }

// Active reports whether the callback can still be reached from the bus.
func (s *Subscription) Active() bool { return s != nil && s.active.Load() }

// Unsubscribe stops future deliveries. An emit already dispatching keeps its
// snapshot and may still reach this callback once.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.Swap(false) {
		return
	}
	s.bus.remove(s)
}

// Subscriptions collects handles owned by one subsystem so they can be
// released together on teardown.
type Subscriptions []*Subscription

// Add appends s, ignoring nil handles.
func (ss *Subscriptions) Add(s *Subscription) {
	if s != nil {
		*ss = append(*ss, s)
	}
}

// UnsubscribeAll releases every handle and empties the set.
func (ss *Subscriptions) UnsubscribeAll() {
	for _, s := range *ss {
		s.Unsubscribe()
	}
	*ss = nil
}
