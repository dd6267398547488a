package appbus

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnBusEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits BusEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnBusEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	switch e.Type {
	case EventSubscriberPanic:
		o.Logger.Warn().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Err(e.Err).
			Msg("appbus event")
	case EventEmitted:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Float64("delivered", float64(e.Delivered)).
			Dur("duration", e.Duration).
			Msg("appbus event")
	default:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("kind", string(e.Kind)).
			Msg("appbus event")
	}
}

// safeObserve shields the caller from observer panics.
func safeObserve(o Observer, e BusEvent) {
	if o == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	o.OnBusEvent(e)
}
