package appbus

import (
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// KindFilterMiddleware drops events of the listed kinds before they reach the
// wrapped callback. Useful to mute noisy kinds for unfiltered subscribers.
func KindFilterMiddleware(muted ...Kind) Middleware {
	if len(muted) == 0 {
		return func(next Callback) Callback { return next }
	}
	set := make(map[Kind]struct{}, len(muted))
	for _, k := range muted {
		set[k] = struct{}{}
	}
	return func(next Callback) Callback {
		return func(e Event) {
			if _, ok := set[e.Kind()]; ok {
				return
			}
			next(e)
		}
	}
}

// SlowCallbackMiddleware logs callbacks that take longer than threshold.
// A frame loop at 60 FPS has roughly 16ms for all of its subscribers.
func SlowCallbackMiddleware(l *xlog.Logger, clk xclock.Clock, threshold time.Duration) Middleware {
	if l == nil || threshold <= 0 {
		return func(next Callback) Callback { return next }
	}
	if clk == nil {
		clk = xclock.Default()
	}
	return func(next Callback) Callback {
		return func(e Event) {
			start := clk.Now()
			next(e)
			if d := clk.Since(start); d > threshold {
				l.Warn().
					Str("kind", string(e.Kind())).
					Dur("dur", d).
					Msg("appbus: slow subscriber")
			}
		}
	}
}

// Chain composes middlewares around a callback in order.
func Chain(fn Callback, mws ...Middleware) Callback {
	if len(mws) == 0 {
		return fn
	}
	wrapped := fn
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
