package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/appbus"
)

const TransportName = "redis-streams"

func init() {
	if err := appbus.RegisterTransport(TransportName, func(cfg map[string]any) (appbus.Transport, error) {
		t, err := NewTransport(ConfigFromMap(cfg))
		if err != nil {
			return nil, err
		}
		return t, nil
	}); err != nil {
		panic(fmt.Errorf("appbus/redisstream: failed to register transport: %w", err))
	}
}

// Transport implements appbus.Transport over Redis Streams.
type Transport struct {
	cfg    Config
	client *redis.Client

	closed  atomic.Bool
	metrics transportMetrics
}

type transportMetrics struct {
	published     atomic.Uint64
	consumed      atomic.Uint64
	acked         atomic.Uint64
	nacked        atomic.Uint64
	deadLettered  atomic.Uint64
	publishErrors atomic.Uint64
	consumeErrors atomic.Uint64
}

var _ appbus.Transport = (*Transport)(nil)

// NewTransport validates cfg, connects and pings Redis.
func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     8,
		MinIdleConns: 1,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
	}

	t := &Transport{cfg: cfg, client: redis.NewClient(opts)}
	if err := t.ping(); err != nil {
		_ = t.client.Close()
		return nil, err
	}
	return t, nil
}

// Stream returns the Redis key used for topic.
func (t *Transport) Stream(topic string) string { return t.cfg.StreamPrefix + topic }

// Publish appends msgs to the topic stream in one pipeline.
func (t *Transport) Publish(ctx context.Context, topic string, msgs ...*appbus.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if topic == "" {
		return appbus.ErrInvalidTopic
	}
	if len(msgs) == 0 {
		return nil
	}

	stream := t.Stream(topic)
	pipe := t.client.Pipeline()
	n := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		args := &redis.XAddArgs{
			Stream: stream,
			ID:     "*",
			Values: encodeValues(m),
		}
		if t.cfg.MaxLenApprox > 0 {
			args.MaxLen = t.cfg.MaxLenApprox
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
		n++
	}
	if n == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		t.metrics.publishErrors.Add(uint64(n))
		return fmt.Errorf("redisstream: publish %s: %w", stream, err)
	}
	t.metrics.published.Add(uint64(n))
	return nil
}

type subscription struct {
	once  sync.Once
	close func()
}

func (s *subscription) Close() error {
	s.once.Do(s.close)
	return nil
}

// Subscribe reads the topic stream within group. Deliveries reach handler
// one at a time, in stream order.
func (t *Transport) Subscribe(ctx context.Context, topic, group string, handler func(appbus.Delivery)) (appbus.TransportSubscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if topic == "" {
		return nil, appbus.ErrInvalidTopic
	}
	if handler == nil {
		return nil, errors.New("redisstream: nil handler")
	}
	if group == "" {
		group = "appbus"
	}

	stream := t.Stream(topic)
	if t.cfg.AutoCreate {
		err := t.client.XGroupCreateMkStream(ctx, stream, group, t.cfg.StartID).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("redisstream: create group %s/%s: %w", stream, group, err)
		}
	}

	innerCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		t.poll(innerCtx, stream, group, handler)
	}()

	if t.cfg.ClaimMinIdle > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.claim(innerCtx, stream, group)
		}()
	}

	return &subscription{close: func() {
		cancel()
		wg.Wait()
	}}, nil
}

func (t *Transport) poll(ctx context.Context, stream, group string, handler func(appbus.Delivery)) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(t.cfg.BatchSize),
		Block:    t.cfg.Block,
	}

	const (
		minBackoff = 100 * time.Millisecond
		maxBackoff = 5 * time.Second
	)
	backoff := minBackoff

	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				backoff = minBackoff
				continue
			}
			t.metrics.consumeErrors.Add(1)
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = minBackoff

		for _, s := range res {
			for _, entry := range s.Messages {
				if ctx.Err() != nil {
					return
				}
				t.metrics.consumed.Add(1)
				handler(&delivery{
					t:      t,
					stream: stream,
					group:  group,
					id:     entry.ID,
					msg:    decodeValues(entry.ID, entry.Values),
				})
			}
		}
	}
}

// claim takes over entries left pending by dead consumers of the group.
func (t *Transport) claim(ctx context.Context, stream, group string) {
	ticker := time.NewTicker(t.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Start:  "-",
			End:    "+",
			Count:  int64(t.cfg.ClaimBatch),
			Idle:   t.cfg.ClaimMinIdle,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}
		_, _ = t.client.XClaimJustID(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: t.cfg.Consumer,
			MinIdle:  t.cfg.ClaimMinIdle,
			Messages: ids,
		}).Result()
	}
}

// Close releases the Redis client. Subscriptions should be closed first.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.client.Close()
}

// Stats is transport telemetry.
type Stats struct {
	Published     uint64
	Consumed      uint64
	Acked         uint64
	Nacked        uint64
	DeadLettered  uint64
	PublishErrors uint64
	ConsumeErrors uint64
}

func (t *Transport) Stats() Stats {
	return Stats{
		Published:     t.metrics.published.Load(),
		Consumed:      t.metrics.consumed.Load(),
		Acked:         t.metrics.acked.Load(),
		Nacked:        t.metrics.nacked.Load(),
		DeadLettered:  t.metrics.deadLettered.Load(),
		PublishErrors: t.metrics.publishErrors.Load(),
		ConsumeErrors: t.metrics.consumeErrors.Load(),
	}
}

func (t *Transport) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := t.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redisstream: ping %s: %w", t.cfg.Addr, err)
	}
	if !strings.EqualFold(res, "PONG") {
		return fmt.Errorf("redisstream: unexpected ping reply %q", res)
	}
	return nil
}
