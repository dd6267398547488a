package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/appbus"
)

// Forwarder publishes every matching bus event onto a transport topic. Bus
// callbacks only enqueue; a single goroutine batches and publishes so a slow
// transport never stalls dispatch.
type Forwarder struct {
	tr    appbus.Transport
	opts  Options
	match func(appbus.Kind) bool
	subs  appbus.Subscriptions

	mu     sync.RWMutex
	closed bool
	queue  chan *appbus.Message
	done   chan struct{}
	once   sync.Once

	forwarded atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewForwarder(bus appbus.Subscriber, tr appbus.Transport, opts Options) (*Forwarder, error) {
	if bus == nil {
		return nil, errors.New("relay: nil bus")
	}
	if tr == nil {
		return nil, appbus.ErrNoTransportConfigured
	}
	opts = opts.withDefaults()
	f := &Forwarder{
		tr:    tr,
		opts:  opts,
		match: opts.kindFilter(),
		queue: make(chan *appbus.Message, opts.Buffer),
		done:  make(chan struct{}),
	}

	sub, err := bus.Subscribe(f.enqueue)
	if err != nil {
		return nil, err
	}
	f.subs.Add(sub)
	go f.run()
	return f, nil
}

// ForwarderStats counts messages by outcome.
type ForwarderStats struct {
	Forwarded uint64
	Dropped   uint64
	Failed    uint64
}

func (f *Forwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Forwarded: f.forwarded.Load(),
		Dropped:   f.dropped.Load(),
		Failed:    f.failed.Load(),
	}
}

// Close unsubscribes from the bus and flushes queued messages. It returns
// ctx.Err() if the flush does not finish in time. Idempotent.
func (f *Forwarder) Close(ctx context.Context) error {
	f.once.Do(func() {
		f.subs.UnsubscribeAll()
		f.mu.Lock()
		f.closed = true
		close(f.queue)
		f.mu.Unlock()
	})
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Forwarder) enqueue(e appbus.Event) {
	if !f.match(e.Kind()) {
		return
	}
	var meta map[string]string
	if f.opts.Session != "" {
		meta = map[string]string{MetaSession: f.opts.Session}
	}
	msg, err := appbus.EncodeEvent(f.opts.Codec, e, f.opts.Clock.Now(), meta)
	if err != nil {
		f.failed.Add(1)
		f.opts.Logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("relay encode failed")
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- msg:
	default:
		f.dropped.Add(1)
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	batch := make([]*appbus.Message, 0, f.opts.BatchSize)
	for msg := range f.queue {
		batch = append(batch[:0], msg)
	fill:
		for len(batch) < f.opts.BatchSize {
			select {
			case m, ok := <-f.queue:
				if !ok {
					break fill
				}
				batch = append(batch, m)
			default:
				break fill
			}
		}
		f.publish(batch)
	}
}

func (f *Forwarder) publish(batch []*appbus.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.PublishTimeout)
	defer cancel()
	if err := f.tr.Publish(ctx, f.opts.Topic, batch...); err != nil {
		f.failed.Add(uint64(len(batch)))
		f.opts.Logger.Warn().
			Err(err).
			Str("topic", f.opts.Topic).
			Float64("messages", float64(len(batch))).
			Msg("relay publish failed")
		return
	}
	f.forwarded.Add(uint64(len(batch)))
}
