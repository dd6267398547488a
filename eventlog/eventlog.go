// Package eventlog traces bus traffic through xlog for diagnostics.
package eventlog

import (
	"errors"
	"sync"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/appbus"
)

// Options selects what gets traced. Every kind is traced unless Enabled maps
// it to false.
type Options struct {
	Enabled map[appbus.Kind]bool
	Logger  *xlog.Logger
}

// Logger writes one trace line per event of an enabled kind.
type Logger struct {
	logger *xlog.Logger
	subs   appbus.Subscriptions
	once   sync.Once

	mu      sync.Mutex
	enabled map[appbus.Kind]bool
	counts  map[appbus.Kind]uint64
}

func New(bus appbus.Subscriber, opts Options) (*Logger, error) {
	if bus == nil {
		return nil, errors.New("eventlog: nil bus")
	}
	if opts.Logger == nil {
		opts.Logger = xlog.Default()
	}
	l := &Logger{
		logger: opts.Logger,
		counts: make(map[appbus.Kind]uint64),
	}
	l.SetEnabled(opts.Enabled)

	sub, err := bus.Subscribe(l.trace)
	if err != nil {
		return nil, err
	}
	l.subs.Add(sub)
	return l, nil
}

// SetEnabled replaces the per-kind flags. Kinds absent from enabled are traced.
func (l *Logger) SetEnabled(enabled map[appbus.Kind]bool) {
	m := make(map[appbus.Kind]bool, len(enabled))
	for k, v := range enabled {
		m[k] = v
	}
	l.mu.Lock()
	l.enabled = m
	l.mu.Unlock()
}

// Enabled reports whether kind is traced.
func (l *Logger) Enabled(kind appbus.Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabledLocked(kind)
}

func (l *Logger) enabledLocked(kind appbus.Kind) bool {
	on, ok := l.enabled[kind]
	return !ok || on
}

// Count returns how many events of kind were traced.
func (l *Logger) Count(kind appbus.Kind) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[kind]
}

// Destroy unsubscribes. Idempotent.
func (l *Logger) Destroy() {
	l.once.Do(l.subs.UnsubscribeAll)
}

func (l *Logger) trace(e appbus.Event) {
	kind := e.Kind()
	l.mu.Lock()
	if !l.enabledLocked(kind) {
		l.mu.Unlock()
		return
	}
	l.counts[kind]++
	l.mu.Unlock()

	ev := l.logger.Info().Str("kind", string(kind))
	switch e := e.(type) {
	case appbus.AnimationFrame:
		ev.Float64("delta", e.Delta).Msg("event")
	case appbus.RendererGeometryUpdate:
		ev.Float64("app_width", e.AppWidth).
			Float64("app_height", e.AppHeight).
			Float64("offset_left", e.OffsetLeft).
			Float64("offset_top", e.OffsetTop).
			Msg("event")
	case appbus.KeyDown:
		ev.Str("code", e.Code).Msg("event")
	case appbus.KeyUp:
		ev.Str("code", e.Code).Msg("event")
	case appbus.MouseMove:
		ev.Float64("mouse_x", e.MouseX).Float64("mouse_y", e.MouseY).Msg("event")
	case appbus.CameraLook:
		ev.Float64("x_pos", e.XPos).Float64("y_pos", e.YPos).Msg("event")
	case appbus.PlayerStartMovement:
		ev.Str("direction", e.Direction.String()).Msg("event")
	case appbus.PlayerStopMovement:
		ev.Str("direction", e.Direction.String()).Msg("event")
	default:
		ev.Msg("event")
	}
}
