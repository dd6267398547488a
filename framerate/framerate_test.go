package framerate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/appbus"
)

func newMeter(t *testing.T, window time.Duration) (*appbus.Bus, *Meter) {
	t.Helper()
	b, err := appbus.NewBusBuilder().WithSyncObservers().WithoutLoggingObserver().Build()
	require.NoError(t, err)
	t.Cleanup(b.Destroy)

	m, err := New(b, window)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	return b, m
}

func TestMeter_SteadyRate(t *testing.T) {
	b, m := newMeter(t, 0)

	for i := 0; i < 120; i++ {
		require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0.02}))
	}

	r := m.Reading()
	assert.InDelta(t, 50, r.FPS, 1e-6)
	assert.Equal(t, 20*time.Millisecond, r.FrameTime)
	assert.Equal(t, uint64(120), r.Frames)
}

func TestMeter_WindowForgetsOldFrames(t *testing.T) {
	b, m := newMeter(t, 100*time.Millisecond)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0.05}))
	}
	assert.InDelta(t, 20, m.Reading().FPS, 1e-6)

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0.01}))
	}

	r := m.Reading()
	assert.InDelta(t, 100, r.FPS, 1e-6)
	assert.InDelta(t, 20, r.MinFPS, 1e-6)
	assert.InDelta(t, 100, r.MaxFPS, 1e-6)
}

func TestMeter_SlowFrameAndZeroDelta(t *testing.T) {
	b, m := newMeter(t, 100*time.Millisecond)

	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0}))
	assert.Zero(t, m.Reading().Frames)

	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0.5}))
	assert.InDelta(t, 2, m.Reading().FPS, 1e-9)
}

func TestMeter_Destroy(t *testing.T) {
	b, m := newMeter(t, 0)

	m.Destroy()
	m.Destroy()
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 0.1}))

	assert.Zero(t, m.Reading().Frames)
}
