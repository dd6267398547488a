// Package relay mirrors bus events onto an appbus.Transport and replays a
// transport topic back into a running host.
package relay

import (
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/appbus"
)

const (
	DefaultTopic          = "appbus.events"
	DefaultGroup          = "appbus-replay"
	DefaultBuffer         = 1024
	DefaultBatchSize      = 64
	DefaultPublishTimeout = 5 * time.Second

	// MetaSession is the metadata key carrying the producing session.
	MetaSession = "session"
)

// Options configures both directions of a relay.
type Options struct {
	Topic string
	// Group is the consumer group a Replayer joins.
	Group string
	Codec appbus.Codec
	Clock xclock.Clock
	// Session is stamped on forwarded messages. A Replayer with a Session
	// only replays messages from that session.
	Session string
	// Kinds restricts relaying to the listed kinds. Empty relays everything.
	Kinds          []appbus.Kind
	Buffer         int
	BatchSize      int
	PublishTimeout time.Duration
	Logger         *xlog.Logger
}

func (o Options) withDefaults() Options {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.Group == "" {
		o.Group = DefaultGroup
	}
	if o.Codec == nil {
		o.Codec = appbus.JSONCodec{}
	}
	if o.Clock == nil {
		o.Clock = xclock.Default()
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	if o.Logger == nil {
		o.Logger = xlog.Default()
	}
	return o
}

func (o Options) kindFilter() func(appbus.Kind) bool {
	if len(o.Kinds) == 0 {
		return func(appbus.Kind) bool { return true }
	}
	set := make(map[appbus.Kind]struct{}, len(o.Kinds))
	for _, k := range o.Kinds {
		set[k] = struct{}{}
	}
	return func(k appbus.Kind) bool {
		_, ok := set[k]
		return ok
	}
}

// Sink receives replayed events. *loop.Loop satisfies it.
type Sink interface {
	Post(e appbus.Event) error
}

// SinkFunc is an Adapter that lets a plain function satisfy Sink.
type SinkFunc func(e appbus.Event) error

func (f SinkFunc) Post(e appbus.Event) error { return f(e) }

// EmitTo returns a Sink that emits straight onto p. Only use it when the
// replayer goroutine may publish on p directly.
func EmitTo(p appbus.Publisher) Sink {
	return SinkFunc(p.Emit)
}
