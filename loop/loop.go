// Package loop drives an application's frame clock. It owns the goroutine
// that publishes on the bus: frames, geometry updates and any event another
// goroutine hands over with Post.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/appbus"
)

var (
	ErrDestroyed  = errors.New("loop: destroyed")
	ErrQueueFull  = errors.New("loop: post queue full")
	ErrRunning    = errors.New("loop: already running")
	ErrInvalidFPS = errors.New("loop: fps must be > 0")
)

// Clock is the time source of the loop. xclock clocks satisfy it.
type Clock interface {
	Now() time.Time
}

// Surface reports the size of the render target. A tcell.Screen satisfies it.
type Surface interface {
	Size() (width, height int)
}

// Options configures a Loop. Zero values select defaults.
type Options struct {
	FPS        int
	QueueSize  int
	Clock      Clock
	Surface    Surface
	Logger     *xlog.Logger
	OffsetLeft float64
	OffsetTop  float64
}

func (o Options) withDefaults() Options {
	if o.FPS == 0 {
		o.FPS = 60
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Clock == nil {
		o.Clock = xclock.Default()
	}
	if o.Logger == nil {
		o.Logger = xlog.Default()
	}
	return o
}

// Loop emits AnimationFrame at a fixed rate and turns WindowResize into
// RendererGeometryUpdate.
type Loop struct {
	bus    appbus.API
	opts   Options
	clock  Clock
	logger *xlog.Logger

	queue chan appbus.Event
	done  chan struct{}
	subs  appbus.Subscriptions

	mu   sync.Mutex
	last time.Time

	running   atomic.Bool
	started   atomic.Bool
	paused    atomic.Bool
	destroyed atomic.Bool
	destroy   sync.Once

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// New wires the loop to bus and emits the initial geometry.
func New(bus appbus.API, opts Options) (*Loop, error) {
	if bus == nil {
		return nil, errors.New("loop: nil bus")
	}
	opts = opts.withDefaults()
	if opts.FPS < 0 {
		return nil, ErrInvalidFPS
	}

	l := &Loop{
		bus:    bus,
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
		queue:  make(chan appbus.Event, opts.QueueSize),
		done:   make(chan struct{}),
	}

	sub, err := bus.On(appbus.KindWindowResize, func(appbus.Event) { l.updateGeometry() })
	if err != nil {
		return nil, err
	}
	l.subs.Add(sub)

	l.updateGeometry()
	return l, nil
}

// Start enables frame emission. It is a no-op once started or destroyed.
func (l *Loop) Start() {
	if l.destroyed.Load() || l.started.Swap(true) {
		return
	}
	l.resetDelta()
	l.logger.Debug().Float64("fps", float64(l.opts.FPS)).Msg("loop: started")
}

// Pause stops frame emission until Resume.
func (l *Loop) Pause() { l.paused.Store(true) }

// Resume restarts frame emission. The first frame after a resume measures
// its delta from the resume, not from the last frame before the pause.
func (l *Loop) Resume() {
	if l.paused.Swap(false) {
		l.resetDelta()
	}
}

func (l *Loop) Started() bool { return l.started.Load() }
func (l *Loop) Paused() bool  { return l.paused.Load() }

// Post hands e to the loop goroutine, which emits it before the next frame.
// It never blocks: a full queue drops the event and reports ErrQueueFull.
func (l *Loop) Post(e appbus.Event) error {
	if e == nil {
		return appbus.ErrNilEvent
	}
	if l.destroyed.Load() {
		return ErrDestroyed
	}
	select {
	case l.queue <- e:
		return nil
	case <-l.done:
		return ErrDestroyed
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run is the loop goroutine. It returns when ctx ends or the loop is destroyed.
func (l *Loop) Run(ctx context.Context) error {
	if l.destroyed.Load() {
		return ErrDestroyed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	ticker := time.NewTicker(time.Second / time.Duration(l.opts.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case e := <-l.queue:
			l.emit(e)
		case <-ticker.C:
			l.Drain()
			l.Frame()
		}
	}
}

// Drain emits every queued event on the calling goroutine.
func (l *Loop) Drain() {
	for {
		select {
		case e := <-l.queue:
			l.emit(e)
		default:
			return
		}
	}
}

// Frame emits one AnimationFrame if the loop is started and not paused.
// It reports whether a frame was emitted.
func (l *Loop) Frame() bool {
	if l.destroyed.Load() || !l.started.Load() || l.paused.Load() {
		return false
	}

	now := l.clock.Now()
	l.mu.Lock()
	delta := now.Sub(l.last)
	l.last = now
	l.mu.Unlock()
	if delta < 0 {
		delta = 0
	}

	l.frames.Add(1)
	l.emit(appbus.AnimationFrame{Delta: delta.Seconds()})
	return true
}

// Destroy stops the loop and releases its subscriptions. Idempotent.
func (l *Loop) Destroy() {
	l.destroy.Do(func() {
		l.destroyed.Store(true)
		close(l.done)
		l.subs.UnsubscribeAll()
		l.logger.Debug().Float64("frames", float64(l.frames.Load())).Msg("loop: destroyed")
	})
}

// Stats is loop telemetry.
type Stats struct {
	Frames  uint64
	Dropped uint64
	Queued  int
}

func (l *Loop) Stats() Stats {
	return Stats{
		Frames:  l.frames.Load(),
		Dropped: l.dropped.Load(),
		Queued:  len(l.queue),
	}
}

func (l *Loop) resetDelta() {
	now := l.clock.Now()
	l.mu.Lock()
	l.last = now
	l.mu.Unlock()
}

func (l *Loop) emit(e appbus.Event) {
	if err := l.bus.Emit(e); err != nil && !errors.Is(err, appbus.ErrEmitAfterDestroy) {
		l.logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("loop: emit failed")
	}
}

// updateGeometry publishes the surface size. A zero dimension becomes 1x1.
func (l *Loop) updateGeometry() {
	if l.destroyed.Load() {
		return
	}
	w, h := 0, 0
	if l.opts.Surface != nil {
		w, h = l.opts.Surface.Size()
	}
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	l.emit(appbus.RendererGeometryUpdate{
		AppWidth:   float64(w),
		AppHeight:  float64(h),
		OffsetLeft: l.opts.OffsetLeft,
		OffsetTop:  l.opts.OffsetTop,
	})
}
