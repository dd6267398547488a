package appbus

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock

	poolWorkers    int
	poolBufferSize int
	syncObservers  bool
	logObserver    bool
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		poolWorkers:    1,
		poolBufferSize: 1024,
		logObserver:    true,
	}
}

// WithMiddleware wraps every subscriber callback registered on the bus.
// Middlewares run inside the dispatch boundary, so their panics are isolated too.
func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	if len(mw) == 0 {
		return bb
	}
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithObserverPool configures the async observer pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBufferSize = bufferSize
	bb.syncObservers = false
	return bb
}

// WithSyncObservers notifies observers inline from the emitting goroutine.
func (bb *BusBuilder) WithSyncObservers() *BusBuilder {
	bb.syncObservers = true
	return bb
}

// WithoutLoggingObserver skips the default LoggingObserver.
func (bb *BusBuilder) WithoutLoggingObserver() *BusBuilder {
	bb.logObserver = false
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		clock:       clk,
		logger:      lg,
		middlewares: bb.middlewares,
		metrics:     &busMetrics{},
	}
	if !bb.syncObservers {
		b.observerPool = NewObserverPool(context.Background(), bb.poolWorkers, bb.poolBufferSize)
	}

	// Attach logging observer first unless one was supplied.
	if bb.logObserver && lg != nil {
		has := false
		for _, o := range bb.observers {
			if _, ok := o.(LoggingObserver); ok {
				has = true
				break
			}
		}
		if !has {
			b.AddObserver(LoggingObserver{Logger: lg})
		}
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}
