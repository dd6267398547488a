// Package appbus is an in-process typed event bus that decouples the
// subsystems of an interactive application (frame loop, input devices,
// camera, world, diagnostics) from one another.
//
// Every subsystem receives the bus by injection, publishes tagged Event values
// with Emit and listens with On (one kind) or Subscribe (every kind). Delivery
// is synchronous, in registration order, and a panicking subscriber never
// breaks the publisher or the remaining subscribers.
package appbus

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ Publisher = (*Bus)(nil)

// Bus is the central broadcast channel for Events.
type Bus struct {
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	// subs is copy-on-write: every mutation installs a fresh slice so a
	// snapshot taken by Emit stays stable while callbacks run.
	mu     sync.Mutex
	subs   []*Subscription
	nextID atomic.Uint64

	destroyed   atomic.Bool
	destroyOnce sync.Once
	metrics     *busMetrics
}

// busMetrics uses lock-free atomics for telemetry.
type busMetrics struct {
	emitCount     atomic.Uint64
	deliverCount  atomic.Uint64
	panicCount    atomic.Uint64
	dispatchNanos atomic.Int64
}

// New returns an Active bus with default logger and clock. It always succeeds.
func New() *Bus {
	b, err := NewBusBuilder().Build()
	if err != nil {
		// Build only fails on invalid explicit configuration.
		panic(fmt.Sprintf("appbus: default bus: %v", err))
	}
	return b
}

// Emit delivers e synchronously to every matching subscriber in registration
// order. Subscribers added or removed while e is being dispatched do not take
// part in this dispatch. Emit returns a *UsageError once the bus is destroyed.
func (b *Bus) Emit(e Event) error {
	if b.destroyed.Load() {
		return ErrEmitAfterDestroy
	}
	if e == nil {
		return ErrNilEvent
	}

	kind := e.Kind()
	snapshot := b.snapshot()
	start := b.clock.Now()
	delivered := 0

	for _, s := range snapshot {
		// Destroy completes the stream: stop an in-flight dispatch.
		if b.destroyed.Load() {
			break
		}
		if s.kind != "" && s.kind != kind {
			continue
		}
		b.deliver(s, kind, e)
		delivered++
	}

	duration := b.clock.Since(start)
	b.metrics.emitCount.Add(1)
	b.metrics.deliverCount.Add(uint64(delivered))
	b.recordDispatchTime(duration.Nanoseconds())
	b.notifyAsync(BusEvent{Type: EventEmitted, Kind: kind, Delivered: delivered, Duration: duration})
	return nil
}

// On registers fn for events whose kind equals kind exactly.
func (b *Bus) On(kind Kind, fn Callback) (*Subscription, error) {
	if b.destroyed.Load() {
		return nil, ErrOnAfterDestroy
	}
	if kind == "" {
		return nil, ErrEmptyKind
	}
	if fn == nil {
		return nil, ErrNilCallback
	}
	return b.add(kind, fn)
}

// Subscribe registers fn for every event regardless of kind.
func (b *Bus) Subscribe(fn Callback) (*Subscription, error) {
	if b.destroyed.Load() {
		return nil, ErrSubscribeAfterDestroy
	}
	if fn == nil {
		return nil, ErrNilCallback
	}
	return b.add("", fn)
}

// Listen registers a typed callback for the variant E. The kind is taken from
// E's zero value, so E must be a concrete event type.
func Listen[E Event](s Subscriber, fn func(E)) (*Subscription, error) {
	var zero E
	if any(zero) == nil {
		return nil, ErrEmptyKind
	}
	if fn == nil {
		return nil, ErrNilCallback
	}
	return s.On(zero.Kind(), func(e Event) {
		if v, ok := e.(E); ok {
			fn(v)
		}
	})
}

// Destroy shuts the bus down. The first call marks it destroyed, releases the
// subscriber list, stops any in-flight dispatch and drains observers. Later
// calls do nothing.
func (b *Bus) Destroy() {
	b.destroyOnce.Do(func() {
		b.destroyed.Store(true)

		b.mu.Lock()
		released := b.subs
		b.subs = nil
		b.mu.Unlock()
		for _, s := range released {
			s.active.Store(false)
		}

		b.notifyObservers(BusEvent{Type: EventDestroyed, At: b.clock.Now()})
		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("appbus: observer pool shutdown timeout")
			}
		}
	})
}

// State reports whether the bus is Active or Destroyed.
func (b *Bus) State() State {
	if b.destroyed.Load() {
		return StateDestroyed
	}
	return StateActive
}

// Logger returns the logger used at the dispatch boundary.
func (b *Bus) Logger() *xlog.Logger { return b.logger }

// Stats returns current bus metrics.
func (b *Bus) Stats() Metrics {
	m := Metrics{
		Emitted:          b.metrics.emitCount.Load(),
		Delivered:        b.metrics.deliverCount.Load(),
		SubscriberErrors: b.metrics.panicCount.Load(),
		Subscriptions:    len(b.snapshot()),
		AvgDispatchMs:    float64(b.metrics.dispatchNanos.Load()) / 1e6,
	}
	if b.observerPool != nil {
		m.EventsDropped = b.observerPool.Stats().Dropped
	}
	return m
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			break
		}
	}
}

func (b *Bus) add(kind Kind, fn Callback) (*Subscription, error) {
	s := &Subscription{
		id:   b.nextID.Add(1),
		kind: kind,
		fn:   Chain(fn, b.middlewares...),
		bus:  b,
	}
	s.active.Store(true)

	b.mu.Lock()
	// Re-check under the lock so a concurrent Destroy cannot be missed.
	if b.destroyed.Load() {
		b.mu.Unlock()
		if kind == "" {
			return nil, ErrSubscribeAfterDestroy
		}
		return nil, ErrOnAfterDestroy
	}
	next := make([]*Subscription, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, s)
	b.mu.Unlock()

	b.notifyAsync(BusEvent{Type: EventSubscribed, Kind: kind, SubscriptionID: s.id})
	return s, nil
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	idx := -1
	for i, cur := range b.subs {
		if cur == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return
	}
	next := make([]*Subscription, 0, len(b.subs)-1)
	next = append(next, b.subs[:idx]...)
	next = append(next, b.subs[idx+1:]...)
	b.subs = next
	b.mu.Unlock()

	b.notifyAsync(BusEvent{Type: EventUnsubscribed, Kind: s.kind, SubscriptionID: s.id})
}

func (b *Bus) snapshot() []*Subscription {
	b.mu.Lock()
	s := b.subs
	b.mu.Unlock()
	return s
}

// deliver is the dispatch boundary: a panicking callback is recovered,
// logged and reported, and never reaches the publisher.
func (b *Bus) deliver(s *Subscription, kind Kind, e Event) {
	defer func() {
		if r := recover(); r != nil {
			serr := &SubscriberError{
				Kind:           kind,
				SubscriptionID: s.id,
				Recovered:      r,
				Stack:          debug.Stack(),
			}
			b.metrics.panicCount.Add(1)
			b.logger.Warn().
				Err(serr).
				Str("kind", string(kind)).
				Msg("appbus: subscriber panic (recovered)")
			b.notifyAsync(BusEvent{Type: EventSubscriberPanic, Kind: kind, SubscriptionID: s.id, Err: serr})
		}
	}()
	s.fn(e)
}

// notifyAsync hands lifecycle events to the observer pool (non-blocking).
// Without a pool, observers run inline.
func (b *Bus) notifyAsync(e BusEvent) {
	if b.destroyed.Load() {
		return
	}
	b.notifyObservers(e)
}

// notifyObservers also runs during Destroy, after notifyAsync goes quiet.
func (b *Bus) notifyObservers(e BusEvent) {
	observers := b.copyObservers()
	if len(observers) == 0 {
		return
	}
	if e.At.IsZero() {
		e.At = b.clock.Now()
	}
	if b.observerPool != nil {
		b.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		safeObserve(o, e)
	}
}

func (b *Bus) copyObservers() []Observer {
	b.observersMu.RLock()
	defer b.observersMu.RUnlock()
	if len(b.observers) == 0 {
		return nil
	}
	out := make([]Observer, len(b.observers))
	copy(out, b.observers)
	return out
}

// recordDispatchTime keeps an exponential moving average of dispatch time.
func (b *Bus) recordDispatchTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.dispatchNanos.Load()
	if current == 0 {
		b.metrics.dispatchNanos.Store(ns)
		return
	}
	b.metrics.dispatchNanos.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
