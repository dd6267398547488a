package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/appbus"
)

const TransportName = "memory"

func init() {
	if err := appbus.RegisterTransport(TransportName, func(cfg map[string]any) (appbus.Transport, error) {
		return NewTransport(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("appbus/memory: failed to register transport: %w", err))
	}
}

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("memory transport is closed")

// Config controls memory transport behavior.
type Config struct {
	// BufferSize is the per-group queue size (default: 1024).
	BufferSize int
	// Concurrency is the number of worker goroutines per subscription (default: 1).
	// Keep it at 1 when subscribers replay events into a bus: more workers reorder.
	Concurrency int
	// RedeliveryDelay is the delay before re-enqueuing a message on Nack (default: 0 = immediate).
	RedeliveryDelay time.Duration
	// History is how many published messages each topic retains for
	// late subscribers and inspection (default: 0 = none).
	History int
	// ReplayHistory delivers retained history to a group when it is first created.
	ReplayHistory bool
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}
	getBool := func(k string, d bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return d
	}
	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		}
		return d
	}

	return Config{
		BufferSize:      max(1, getInt("buffer_size", 1024)),
		Concurrency:     max(1, getInt("concurrency", 1)),
		RedeliveryDelay: getDur("redelivery_delay", 0),
		History:         max(0, getInt("history", 0)),
		ReplayHistory:   getBool("replay_history", false),
	}
}

func (c Config) ToMap() map[string]any {
	return map[string]any{
		"buffer_size":      c.BufferSize,
		"concurrency":      c.Concurrency,
		"redelivery_delay": c.RedeliveryDelay,
		"history":          c.History,
		"replay_history":   c.ReplayHistory,
	}
}

// Transport carries encoded events between buses of one process. It is meant
// for tests, local tooling and single-process demos.
type Transport struct {
	cfg Config

	mu     sync.RWMutex
	topics map[string]*topic

	closed  atomic.Bool
	metrics transportMetrics
}

type transportMetrics struct {
	published   atomic.Uint64
	consumed    atomic.Uint64
	acked       atomic.Uint64
	nacked      atomic.Uint64
	redelivered atomic.Uint64
}

var _ appbus.Transport = (*Transport)(nil)

// NewTransport creates a new in-memory transport.
func NewTransport(cfg Config) *Transport {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1024
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Transport{
		cfg:    cfg,
		topics: make(map[string]*topic),
	}
}

// Publish fans out messages to every consumer group of the topic and records
// them in the topic history.
func (t *Transport) Publish(ctx context.Context, topicName string, msgs ...*appbus.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if topicName == "" {
		return appbus.ErrInvalidTopic
	}
	if len(msgs) == 0 {
		return nil
	}

	tp := t.ensureTopic(topicName)
	for _, m := range msgs {
		if m == nil {
			continue
		}

		tp.mu.Lock()
		if m.ID == "" {
			tp.seq++
			m.ID = topicName + "-" + strconv.FormatUint(tp.seq, 10)
		}
		tp.remember(m, t.cfg.History)
		groups := make([]*group, 0, len(tp.groups))
		for _, g := range tp.groups {
			groups = append(groups, g)
		}
		tp.mu.Unlock()

		for _, g := range groups {
			select {
			case g.queue <- &task{group: g, msg: m}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		t.metrics.published.Add(1)
	}
	return nil
}

// Subscribe starts Concurrency workers draining the group's queue.
func (t *Transport) Subscribe(ctx context.Context, topicName, groupName string, handler func(appbus.Delivery)) (appbus.TransportSubscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if topicName == "" {
		return nil, appbus.ErrInvalidTopic
	}
	if handler == nil {
		return nil, errors.New("memory transport: nil handler")
	}

	tp := t.ensureTopic(topicName)
	g := tp.ensureGroup(groupName, t.cfg)

	innerCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	for i := 0; i < t.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.worker(innerCtx, g, handler)
		}()
	}

	var once sync.Once
	return subscriptionFunc(func() error {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
		return nil
	}), nil
}

func (t *Transport) worker(ctx context.Context, g *group, handler func(appbus.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case tk := <-g.queue:
			t.metrics.consumed.Add(1)
			handler(&delivery{task: tk, tr: t, ctx: ctx})
		}
	}
}

// History returns the retained messages of a topic, oldest first.
func (t *Transport) History(topicName string) []*appbus.Message {
	t.mu.RLock()
	tp, ok := t.topics[topicName]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	out := make([]*appbus.Message, len(tp.history))
	copy(out, tp.history)
	return out
}

// Close gracefully shuts down the transport.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	t.topics = make(map[string]*topic)
	t.mu.Unlock()
	return nil
}

// Stats returns transport telemetry.
type Stats struct {
	Published   uint64
	Consumed    uint64
	Acked       uint64
	Nacked      uint64
	Redelivered uint64
}

func (t *Transport) Stats() Stats {
	return Stats{
		Published:   t.metrics.published.Load(),
		Consumed:    t.metrics.consumed.Load(),
		Acked:       t.metrics.acked.Load(),
		Nacked:      t.metrics.nacked.Load(),
		Redelivered: t.metrics.redelivered.Load(),
	}
}

type subscriptionFunc func() error

func (f subscriptionFunc) Close() error { return f() }

type topic struct {
	mu      sync.Mutex
	seq     uint64
	history []*appbus.Message
	groups  map[string]*group
}

func (tp *topic) remember(m *appbus.Message, limit int) {
	if limit <= 0 {
		return
	}
	tp.history = append(tp.history, m)
	if over := len(tp.history) - limit; over > 0 {
		tp.history = append(tp.history[:0:0], tp.history[over:]...)
	}
}

type group struct {
	name  string
	queue chan *task
}

type task struct {
	group *group
	msg   *appbus.Message
}

type delivery struct {
	task *task
	tr   *Transport
	ctx  context.Context
	once sync.Once
}

func (d *delivery) Message() *appbus.Message { return d.task.msg }

func (d *delivery) Ack(_ context.Context) error {
	d.once.Do(func() { d.tr.metrics.acked.Add(1) })
	return nil
}

// Nack re-enqueues the message for the same group, after RedeliveryDelay.
func (d *delivery) Nack(ctx context.Context, _ error) error {
	d.once.Do(func() {
		d.tr.metrics.nacked.Add(1)
		d.tr.metrics.redelivered.Add(1)

		delay := d.tr.cfg.RedeliveryDelay
		if delay <= 0 {
			select {
			case d.task.group.queue <- d.task:
			case <-ctx.Done():
			case <-d.ctx.Done():
			}
			return
		}
		go func() {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
				select {
				case d.task.group.queue <- d.task:
				case <-d.ctx.Done():
				}
			case <-d.ctx.Done():
			}
		}()
	})
	return nil
}

func (t *Transport) ensureTopic(name string) *topic {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok := t.topics[name]; ok {
		return tp
	}
	tp := &topic{groups: make(map[string]*group)}
	t.topics[name] = tp
	return tp
}

func (tp *topic) ensureGroup(name string, cfg Config) *group {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if g, ok := tp.groups[name]; ok {
		return g
	}
	size := cfg.BufferSize
	if cfg.ReplayHistory && len(tp.history) > size {
		size = len(tp.history)
	}
	g := &group{name: name, queue: make(chan *task, size)}
	if cfg.ReplayHistory {
		for _, m := range tp.history {
			g.queue <- &task{group: g, msg: m}
		}
	}
	tp.groups[name] = g
	return g
}
