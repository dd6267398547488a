package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/appbus"
)

// ErrReplayerStarted is returned by a second Start.
var ErrReplayerStarted = errors.New("relay: replayer already started")

// Replayer consumes a transport topic, decodes each message and posts the
// event to a Sink.
//
// Messages of unknown kinds, malformed payloads and filtered messages are
// acked and skipped. A message the sink refuses is nacked so the transport
// can redeliver or dead-letter it.
type Replayer struct {
	tr    appbus.Transport
	sink  Sink
	opts  Options
	match func(appbus.Kind) bool

	mu  sync.Mutex
	sub appbus.TransportSubscription

	replayed atomic.Uint64
	skipped  atomic.Uint64
	refused  atomic.Uint64
}

func NewReplayer(tr appbus.Transport, sink Sink, opts Options) (*Replayer, error) {
	if tr == nil {
		return nil, appbus.ErrNoTransportConfigured
	}
	if sink == nil {
		return nil, errors.New("relay: nil sink")
	}
	opts = opts.withDefaults()
	return &Replayer{tr: tr, sink: sink, opts: opts, match: opts.kindFilter()}, nil
}

// Start joins the consumer group. Deliveries run until ctx ends or Close.
func (r *Replayer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return ErrReplayerStarted
	}
	sub, err := r.tr.Subscribe(ctx, r.opts.Topic, r.opts.Group, r.handle)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Close leaves the consumer group. Idempotent.
func (r *Replayer) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// ReplayerStats counts deliveries by outcome.
type ReplayerStats struct {
	Replayed uint64
	Skipped  uint64
	Refused  uint64
}

func (r *Replayer) Stats() ReplayerStats {
	return ReplayerStats{
		Replayed: r.replayed.Load(),
		Skipped:  r.skipped.Load(),
		Refused:  r.refused.Load(),
	}
}

func (r *Replayer) handle(d appbus.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.PublishTimeout)
	defer cancel()

	msg := d.Message()
	if r.opts.Session != "" && msg.Metadata[MetaSession] != r.opts.Session {
		r.skip(ctx, d)
		return
	}
	if !r.match(appbus.Kind(msg.Name)) {
		r.skip(ctx, d)
		return
	}

	e, err := appbus.DecodeEvent(r.opts.Codec, msg)
	if err != nil {
		var unknown appbus.ErrUnknownKind
		if errors.As(err, &unknown) {
			r.opts.Logger.Debug().Str("kind", msg.Name).Str("id", msg.ID).Msg("relay skipped unknown kind")
		} else {
			r.opts.Logger.Warn().Err(err).Str("kind", msg.Name).Str("id", msg.ID).Msg("relay skipped malformed message")
		}
		r.skip(ctx, d)
		return
	}

	if err := r.sink.Post(e); err != nil {
		r.refused.Add(1)
		r.opts.Logger.Warn().Err(err).Str("kind", msg.Name).Str("id", msg.ID).Msg("relay sink refused event")
		if nerr := d.Nack(ctx, err); nerr != nil {
			r.opts.Logger.Warn().Err(nerr).Str("id", msg.ID).Msg("relay nack failed")
		}
		return
	}
	r.replayed.Add(1)
	if err := d.Ack(ctx); err != nil {
		r.opts.Logger.Warn().Err(err).Str("id", msg.ID).Msg("relay ack failed")
	}
}

func (r *Replayer) skip(ctx context.Context, d appbus.Delivery) {
	r.skipped.Add(1)
	if err := d.Ack(ctx); err != nil {
		r.opts.Logger.Warn().Err(err).Str("id", d.Message().ID).Msg("relay ack failed")
	}
}
