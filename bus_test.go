package appbus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, opts ...func(*BusBuilder)) *Bus {
	t.Helper()
	bb := NewBusBuilder().WithSyncObservers().WithoutLoggingObserver()
	for _, o := range opts {
		o(bb)
	}
	b, err := bb.Build()
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func TestNew_IsActive(t *testing.T) {
	b := New()
	defer b.Destroy()

	assert.Equal(t, StateActive, b.State())
	require.NoError(t, b.Emit(WindowResize{}))
}

func TestEmit_DeliversInRegistrationOrder(t *testing.T) {
	b := newTestBus(t)

	var got []string
	_, err := b.On(KindKeyDown, func(Event) { got = append(got, "on-1") })
	require.NoError(t, err)
	_, err = b.Subscribe(func(Event) { got = append(got, "all") })
	require.NoError(t, err)
	_, err = b.On(KindKeyDown, func(Event) { got = append(got, "on-2") })
	require.NoError(t, err)

	require.NoError(t, b.Emit(KeyDown{Code: "KeyW"}))

	assert.Equal(t, []string{"on-1", "all", "on-2"}, got)
}

func TestOn_FiltersByExactKind(t *testing.T) {
	b := newTestBus(t)

	var got []KeyDown
	_, err := b.On(KindKeyDown, func(e Event) { got = append(got, e.(KeyDown)) })
	require.NoError(t, err)

	require.NoError(t, b.Emit(MouseMove{MouseX: 0.5, MouseY: -0.5}))
	require.NoError(t, b.Emit(KeyUp{Code: "KeyW"}))
	assert.Empty(t, got)

	require.NoError(t, b.Emit(KeyDown{Code: "KeyA"}))
	require.Len(t, got, 1)
	assert.Equal(t, "KeyA", got[0].Code)
}

func TestSubscribe_ReceivesEveryKind(t *testing.T) {
	b := newTestBus(t)

	var got []Event
	_, err := b.Subscribe(func(e Event) { got = append(got, e) })
	require.NoError(t, err)

	events := []Event{
		AnimationFrame{Delta: 0.016},
		WindowResize{},
		KeyDown{Code: "KeyS"},
		MouseMove{MouseX: 1, MouseY: 2},
		PlayerStartMovement{Direction: Left},
	}
	for _, e := range events {
		require.NoError(t, b.Emit(e))
	}

	assert.Equal(t, events, got)
}

func TestListen_TypedCallback(t *testing.T) {
	b := newTestBus(t)

	var deltas []float64
	_, err := Listen(b, func(e AnimationFrame) { deltas = append(deltas, e.Delta) })
	require.NoError(t, err)

	require.NoError(t, b.Emit(AnimationFrame{Delta: 0.5}))
	require.NoError(t, b.Emit(WindowResize{}))
	require.NoError(t, b.Emit(AnimationFrame{Delta: 0.25}))

	assert.Equal(t, []float64{0.5, 0.25}, deltas)
}

func TestListen_RejectsInterfaceType(t *testing.T) {
	b := newTestBus(t)

	_, err := Listen(b, func(Event) {})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestEmit_PanickingSubscriberIsIsolated(t *testing.T) {
	var reported []BusEvent
	b := newTestBus(t, func(bb *BusBuilder) {
		bb.WithObserver(ObserverFunc(func(e BusEvent) {
			if e.Type == EventSubscriberPanic {
				reported = append(reported, e)
			}
		}))
	})

	_, err := b.Subscribe(func(Event) { panic("boom") })
	require.NoError(t, err)
	calls := 0
	_, err = b.Subscribe(func(Event) { calls++ })
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, b.Emit(MouseDown{}))
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), b.Stats().SubscriberErrors)
	require.Len(t, reported, 1)
	var serr *SubscriberError
	require.True(t, errors.As(reported[0].Err, &serr))
	assert.Equal(t, KindMouseDown, serr.Kind)
	assert.Equal(t, "boom", serr.Recovered)
	assert.NotEmpty(t, serr.Stack)
}

func TestSubscriberError_UnwrapsPanickedError(t *testing.T) {
	sentinel := errors.New("subscriber broke")
	serr := &SubscriberError{Kind: KindKeyUp, Recovered: sentinel}

	assert.ErrorIs(t, serr, sentinel)
	assert.Contains(t, serr.Error(), "KeyUp")
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := New()

	calls := 0
	sub, err := b.Subscribe(func(Event) { calls++ })
	require.NoError(t, err)
	require.True(t, sub.Active())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.False(t, sub.Active())

	require.NoError(t, b.Emit(MouseUp{}))
	assert.Zero(t, calls)

	b.Destroy()
	assert.NotPanics(t, sub.Unsubscribe)
}

func TestUnsubscribe_AfterDestroy(t *testing.T) {
	b := New()
	sub, err := b.On(KindCameraLook, func(Event) {})
	require.NoError(t, err)

	b.Destroy()

	assert.False(t, sub.Active())
	assert.NotPanics(t, sub.Unsubscribe)
	assert.NotPanics(t, sub.Unsubscribe)
}

func TestDestroy_UsageErrors(t *testing.T) {
	b := New()
	b.Destroy()

	err := b.Emit(WindowResize{})
	assert.ErrorIs(t, err, ErrUsage)
	assert.ErrorIs(t, err, ErrEmitAfterDestroy)

	_, err = b.On(KindWindowResize, func(Event) {})
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "on", uerr.Op)

	_, err = b.Subscribe(func(Event) {})
	assert.ErrorIs(t, err, ErrSubscribeAfterDestroy)
}

func TestDestroy_Idempotent(t *testing.T) {
	destroyed := 0
	b, err := NewBusBuilder().
		WithSyncObservers().
		WithoutLoggingObserver().
		WithObserver(ObserverFunc(func(e BusEvent) {
			if e.Type == EventDestroyed {
				destroyed++
			}
		})).
		Build()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.NotPanics(t, b.Destroy)
	}

	assert.Equal(t, StateDestroyed, b.State())
	assert.Equal(t, 1, destroyed)
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestEmit_UnsubscribeDuringDispatchKeepsSnapshot(t *testing.T) {
	b := newTestBus(t)

	var got []string
	var second *Subscription
	_, err := b.Subscribe(func(Event) {
		got = append(got, "first")
		second.Unsubscribe()
	})
	require.NoError(t, err)
	second, err = b.Subscribe(func(Event) { got = append(got, "second") })
	require.NoError(t, err)

	require.NoError(t, b.Emit(MouseDown{}))
	require.NoError(t, b.Emit(MouseDown{}))

	assert.Equal(t, []string{"first", "second", "first"}, got)
}

func TestEmit_SubscribeDuringDispatchWaitsForNextEmit(t *testing.T) {
	b := newTestBus(t)

	late := 0
	once := sync.Once{}
	_, err := b.Subscribe(func(Event) {
		once.Do(func() {
			_, err := b.Subscribe(func(Event) { late++ })
			require.NoError(t, err)
		})
	})
	require.NoError(t, err)

	require.NoError(t, b.Emit(WindowResize{}))
	assert.Zero(t, late)
	require.NoError(t, b.Emit(WindowResize{}))
	assert.Equal(t, 1, late)
}

func TestEmit_NestedEmitIsDepthFirst(t *testing.T) {
	b := newTestBus(t)

	var got []Kind
	_, err := b.On(KindKeyDown, func(Event) {
		require.NoError(t, b.Emit(PlayerStartMovement{Direction: Forward}))
	})
	require.NoError(t, err)
	_, err = b.Subscribe(func(e Event) { got = append(got, e.Kind()) })
	require.NoError(t, err)

	require.NoError(t, b.Emit(KeyDown{Code: "KeyW"}))

	assert.Equal(t, []Kind{KindPlayerStartMovement, KindKeyDown}, got)
}

func TestDestroy_DuringDispatchStopsDelivery(t *testing.T) {
	b := New()

	calls := 0
	_, err := b.Subscribe(func(Event) { b.Destroy() })
	require.NoError(t, err)
	_, err = b.Subscribe(func(Event) { calls++ })
	require.NoError(t, err)

	require.NoError(t, b.Emit(WindowResize{}))
	assert.Zero(t, calls)
	assert.ErrorIs(t, b.Emit(WindowResize{}), ErrEmitAfterDestroy)
}

func TestEmit_NilEventAndCallback(t *testing.T) {
	b := newTestBus(t)

	assert.ErrorIs(t, b.Emit(nil), ErrNilEvent)
	_, err := b.Subscribe(nil)
	assert.ErrorIs(t, err, ErrNilCallback)
	_, err = b.On("", func(Event) {})
	assert.ErrorIs(t, err, ErrEmptyKind)
}

func TestStats_CountsDeliveries(t *testing.T) {
	b := newTestBus(t)

	_, err := b.On(KindAnimationFrame, func(Event) {})
	require.NoError(t, err)
	_, err = b.Subscribe(func(Event) {})
	require.NoError(t, err)

	require.NoError(t, b.Emit(AnimationFrame{Delta: 1}))
	require.NoError(t, b.Emit(KeyUp{Code: "KeyA"}))

	m := b.Stats()
	assert.Equal(t, uint64(2), m.Emitted)
	assert.Equal(t, uint64(3), m.Delivered)
	assert.Equal(t, 2, m.Subscriptions)
}

func TestSubscriptions_UnsubscribeAll(t *testing.T) {
	b := newTestBus(t)

	var subs Subscriptions
	for i := 0; i < 3; i++ {
		s, err := b.Subscribe(func(Event) {})
		require.NoError(t, err)
		subs.Add(s)
	}
	subs.Add(nil)
	require.Len(t, subs, 3)

	subs.UnsubscribeAll()

	assert.Empty(t, subs)
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestEmit_ConcurrentPublishers(t *testing.T) {
	b := New()
	defer b.Destroy()

	var mu sync.Mutex
	count := 0
	_, err := b.On(KindMouseMove, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = b.Emit(MouseMove{MouseX: float64(i)})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, count)
}
