package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/appbus"
)

const eps = 1e-4

func newCamera(t *testing.T, opts Options) (*appbus.Bus, *Camera) {
	t.Helper()
	b, err := appbus.NewBusBuilder().WithSyncObservers().WithoutLoggingObserver().Build()
	require.NoError(t, err)
	t.Cleanup(b.Destroy)

	c, err := New(b, opts)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return b, c
}

func TestNew_Defaults(t *testing.T) {
	_, c := newCamera(t, Options{})

	s := c.State()
	assert.Equal(t, DefaultFieldOfView, s.FieldOfView)
	assert.Equal(t, float32(1), s.Aspect)
	assert.False(t, s.Enabled)
	assert.InDelta(t, 0, s.Target.X, eps)
	assert.InDelta(t, 1, s.Target.Y, eps)
	assert.InDelta(t, 1, s.Target.Z, eps)
}

func TestNew_FieldOfViewClamp(t *testing.T) {
	cases := []struct {
		in, want float32
	}{
		{in: 0, want: DefaultFieldOfView},
		{in: 1, want: 1},
		{in: 90, want: 90},
		{in: 359, want: 359},
		{in: 360, want: DefaultFieldOfView},
		{in: -5, want: DefaultFieldOfView},
	}
	for _, tc := range cases {
		_, c := newCamera(t, Options{FieldOfView: tc.in})
		assert.Equal(t, tc.want, c.State().FieldOfView, "fov %v", tc.in)
	}
}

func TestGeometry_SetsAspect(t *testing.T) {
	b, c := newCamera(t, Options{})

	require.NoError(t, b.Emit(appbus.RendererGeometryUpdate{AppWidth: 160, AppHeight: 40}))
	assert.Equal(t, float32(4), c.State().Aspect)

	require.NoError(t, b.Emit(appbus.RendererGeometryUpdate{AppWidth: 10, AppHeight: 0}))
	assert.Equal(t, float32(4), c.State().Aspect)
}

func TestFrame_IgnoredUntilEnabled(t *testing.T) {
	b, c := newCamera(t, Options{})

	require.NoError(t, b.Emit(appbus.PlayerStartMovement{Direction: appbus.Forward}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 1}))
	assert.Equal(t, Vec3{}, c.State().Position)

	require.NoError(t, b.Emit(appbus.MouseDown{}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 2}))
	assert.InDelta(t, 2, c.State().Position.Y, eps)

	require.NoError(t, b.Emit(appbus.KeyDown{Code: "Escape"}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 2}))
	assert.InDelta(t, 2, c.State().Position.Y, eps)
}

func TestMovement_AllDirections(t *testing.T) {
	b, c := newCamera(t, Options{Enabled: true, MovementSpeed: 2})

	move := func(d appbus.Direction, delta float64) {
		require.NoError(t, b.Emit(appbus.PlayerStartMovement{Direction: d}))
		require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: delta}))
		require.NoError(t, b.Emit(appbus.PlayerStopMovement{Direction: d}))
	}

	move(appbus.Forward, 1)
	move(appbus.Right, 0.5)
	move(appbus.Backward, 0.25)
	move(appbus.Left, 0.25)

	p := c.State().Position
	assert.InDelta(t, 0.5, p.X, eps)
	assert.InDelta(t, 1.5, p.Y, eps)
	assert.Equal(t, [4]bool{}, c.State().Moving)

	require.NoError(t, b.Emit(appbus.PlayerStartMovement{Direction: appbus.Direction(9)}))
	assert.Equal(t, [4]bool{}, c.State().Moving)
}

func TestLook_IntegratesTheta(t *testing.T) {
	b, c := newCamera(t, Options{Enabled: true, LookSpeed: 90})

	require.NoError(t, b.Emit(appbus.CameraLook{XPos: 1, YPos: 0}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 1}))

	s := c.State()
	assert.InDelta(t, 90, s.Theta, eps)
	assert.InDelta(t, 1, s.Target.X, eps)
	assert.InDelta(t, 0, s.Target.Y, eps)

	// Forward now follows the new heading.
	require.NoError(t, b.Emit(appbus.CameraLook{}))
	require.NoError(t, b.Emit(appbus.PlayerStartMovement{Direction: appbus.Forward}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 3}))
	assert.InDelta(t, 3, c.State().Position.Distance(Vec3{}), eps)
	assert.InDelta(t, 3, c.State().Position.X, eps)
}

func TestDestroy_Unsubscribes(t *testing.T) {
	b, c := newCamera(t, Options{Enabled: true})

	c.Destroy()
	c.Destroy()
	require.NoError(t, b.Emit(appbus.PlayerStartMovement{Direction: appbus.Forward}))
	require.NoError(t, b.Emit(appbus.AnimationFrame{Delta: 1}))

	assert.Equal(t, Vec3{}, c.State().Position)
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestNew_NilBus(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}
