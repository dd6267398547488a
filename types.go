package appbus

import (
	"time"
)

// State is the lifecycle state of a Bus. Active is entered at construction;
// Destroyed is terminal.
type State int32

const (
	StateActive State = iota
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// BusEventType enumerates internal lifecycle events for the Observer pattern.
type BusEventType string

const (
	EventSubscribed      BusEventType = "subscribed"
	EventUnsubscribed    BusEventType = "unsubscribed"
	EventEmitted         BusEventType = "emitted"
	EventSubscriberPanic BusEventType = "subscriber_panic"
	EventDestroyed       BusEventType = "destroyed"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type           BusEventType
	Kind           Kind
	SubscriptionID uint64
	Delivered      int
	Duration       time.Duration
	At             time.Time
	Err            error
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Emitted          uint64
	Delivered        uint64
	SubscriberErrors uint64
	Subscriptions    int
	EventsDropped    uint64
	AvgDispatchMs    float64
}
