package appbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var got []string
	tag := func(name string) Middleware {
		return func(next Callback) Callback {
			return func(e Event) {
				got = append(got, name)
				next(e)
			}
		}
	}

	fn := Chain(func(Event) { got = append(got, "fn") }, tag("a"), nil, tag("b"))
	fn(WindowResize{})

	assert.Equal(t, []string{"a", "b", "fn"}, got)
}

func TestKindFilterMiddleware_MutesKinds(t *testing.T) {
	b := newTestBus(t, func(bb *BusBuilder) {
		bb.WithMiddleware(KindFilterMiddleware(KindAnimationFrame))
	})

	var got []Kind
	_, err := b.Subscribe(func(e Event) { got = append(got, e.Kind()) })
	require.NoError(t, err)

	require.NoError(t, b.Emit(AnimationFrame{Delta: 1}))
	require.NoError(t, b.Emit(WindowResize{}))

	assert.Equal(t, []Kind{KindWindowResize}, got)
}

func TestMiddlewarePanicIsIsolated(t *testing.T) {
	b := newTestBus(t, func(bb *BusBuilder) {
		bb.WithMiddleware(func(next Callback) Callback {
			return func(e Event) {
				if e.Kind() == KindMouseUp {
					panic("middleware")
				}
				next(e)
			}
		})
	})

	calls := 0
	_, err := b.Subscribe(func(Event) { calls++ })
	require.NoError(t, err)

	require.NoError(t, b.Emit(MouseUp{}))
	require.NoError(t, b.Emit(MouseDown{}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), b.Stats().SubscriberErrors)
}

func TestObserverPool_DeliversAndDrainsOnClose(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 16)

	var seen atomic.Int32
	obs := ObserverFunc(func(BusEvent) { seen.Add(1) })
	for i := 0; i < 10; i++ {
		pool.Notify(BusEvent{Type: EventEmitted}, []Observer{obs})
	}

	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(10), seen.Load())
	assert.Equal(t, uint64(10), pool.Stats().Processed)

	pool.Notify(BusEvent{Type: EventEmitted}, []Observer{obs})
	assert.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(10), seen.Load())
}

func TestObserverPool_SurvivesObserverPanic(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 4)

	var seen atomic.Int32
	bad := ObserverFunc(func(BusEvent) { panic("observer") })
	good := ObserverFunc(func(BusEvent) { seen.Add(1) })
	pool.Notify(BusEvent{Type: EventDestroyed}, []Observer{bad, good})

	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(1), seen.Load())
}

func TestBus_AsyncObservers(t *testing.T) {
	var subscribed atomic.Int32
	b, err := NewBusBuilder().
		WithObserverPool(1, 64).
		WithoutLoggingObserver().
		WithObserver(ObserverFunc(func(e BusEvent) {
			if e.Type == EventSubscribed {
				subscribed.Add(1)
			}
		})).
		Build()
	require.NoError(t, err)

	_, err = b.Subscribe(func(Event) {})
	require.NoError(t, err)
	_, err = b.On(KindKeyUp, func(Event) {})
	require.NoError(t, err)

	// Destroy drains the pool.
	b.Destroy()
	assert.Equal(t, int32(2), subscribed.Load())
}
