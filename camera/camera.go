// Package camera implements a first-person camera driven by bus events.
package camera

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"

	"github.com/trickstertwo/appbus"
)

const (
	DefaultFieldOfView   float32 = 45
	DefaultMovementSpeed float32 = 1.0
	DefaultLookSpeed     float32 = 0.005

	minFieldOfView float32 = 1
	maxFieldOfView float32 = 359

	degToRad = math32.Pi / 180
)

// Vec3 is a point or direction in world space. Z is up.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3         { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Scale(s float32) Vec3    { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Distance(o Vec3) float32 { return math32.Hypot(math32.Hypot(v.X-o.X, v.Y-o.Y), v.Z-o.Z) }

// Options configures a Camera. Zero values select the defaults.
type Options struct {
	// FieldOfView in degrees. Values outside [1, 359] fall back to the default.
	FieldOfView   float32
	Position      Vec3
	MovementSpeed float32
	LookSpeed     float32
	// Theta is the initial heading in degrees, clockwise from +Y.
	Theta float32
	// Enabled starts the camera active instead of waiting for a mouse press.
	Enabled bool
}

// State is a snapshot of the camera.
type State struct {
	Position    Vec3
	Target      Vec3
	Theta       float32
	FieldOfView float32
	Aspect      float32
	Enabled     bool
	Moving      [4]bool
}

// Camera moves on PlayerStart/StopMovement, turns on CameraLook and
// integrates both on every AnimationFrame. A MouseDown enables it, Escape
// disables it.
type Camera struct {
	subs appbus.Subscriptions
	once sync.Once

	mu            sync.Mutex
	fov           float32
	aspect        float32
	movementSpeed float32
	lookSpeed     float32
	theta         float32
	lookX         float32
	lookY         float32
	position      Vec3
	target        Vec3
	moving        [4]bool
	enabled       bool
}

func New(bus appbus.Subscriber, opts Options) (*Camera, error) {
	if bus == nil {
		return nil, errors.New("camera: nil bus")
	}

	c := &Camera{
		fov:           DefaultFieldOfView,
		aspect:        1,
		movementSpeed: DefaultMovementSpeed,
		lookSpeed:     DefaultLookSpeed,
		theta:         opts.Theta,
		position:      opts.Position,
	}
	if opts.FieldOfView >= minFieldOfView && opts.FieldOfView <= maxFieldOfView {
		c.fov = opts.FieldOfView
	}
	if opts.MovementSpeed != 0 {
		c.movementSpeed = opts.MovementSpeed
	}
	if opts.LookSpeed != 0 {
		c.lookSpeed = opts.LookSpeed
	}

	// Aim once so the target is valid before the first frame.
	c.enabled = true
	c.update(0)
	c.enabled = opts.Enabled

	binds := []func() (*appbus.Subscription, error){
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onFrame) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onGeometry) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onStart) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onStop) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onLook) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onMouseDown) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onKeyDown) },
	}
	for _, bind := range binds {
		sub, err := bind()
		if err != nil {
			c.subs.UnsubscribeAll()
			return nil, err
		}
		c.subs.Add(sub)
	}
	return c, nil
}

// Destroy unsubscribes. Idempotent.
func (c *Camera) Destroy() {
	c.once.Do(c.subs.UnsubscribeAll)
}

func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Position:    c.position,
		Target:      c.target,
		Theta:       c.theta,
		FieldOfView: c.fov,
		Aspect:      c.aspect,
		Enabled:     c.enabled,
		Moving:      c.moving,
	}
}

// Heading is the unit vector the camera faces in the ground plane.
func Heading(thetaDeg float32) Vec3 {
	sin, cos := math32.Sincos(thetaDeg * degToRad)
	return Vec3{X: sin, Y: cos}
}

func (c *Camera) onFrame(e appbus.AnimationFrame) {
	c.mu.Lock()
	c.update(float32(e.Delta))
	c.mu.Unlock()
}

func (c *Camera) onGeometry(e appbus.RendererGeometryUpdate) {
	if e.AppHeight <= 0 {
		return
	}
	c.mu.Lock()
	c.aspect = float32(e.AppWidth / e.AppHeight)
	c.mu.Unlock()
}

func (c *Camera) onStart(e appbus.PlayerStartMovement) { c.setMoving(e.Direction, true) }
func (c *Camera) onStop(e appbus.PlayerStopMovement)   { c.setMoving(e.Direction, false) }

func (c *Camera) setMoving(d appbus.Direction, on bool) {
	if d < appbus.Forward || d > appbus.Right {
		return
	}
	c.mu.Lock()
	c.moving[d] = on
	c.mu.Unlock()
}

func (c *Camera) onLook(e appbus.CameraLook) {
	c.mu.Lock()
	c.lookX, c.lookY = float32(e.XPos), float32(e.YPos)
	c.mu.Unlock()
}

func (c *Camera) onMouseDown(appbus.MouseDown) {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

func (c *Camera) onKeyDown(e appbus.KeyDown) {
	if e.Code != "Escape" {
		return
	}
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// update integrates movement and heading over delta seconds. Callers hold mu.
func (c *Camera) update(delta float32) {
	if !c.enabled {
		return
	}

	step := delta * c.movementSpeed
	fwd := Heading(c.theta)
	right := Vec3{X: fwd.Y, Y: -fwd.X}
	if c.moving[appbus.Forward] {
		c.position = c.position.Add(fwd.Scale(step))
	}
	if c.moving[appbus.Backward] {
		c.position = c.position.Add(fwd.Scale(-step))
	}
	if c.moving[appbus.Left] {
		c.position = c.position.Add(right.Scale(-step))
	}
	if c.moving[appbus.Right] {
		c.position = c.position.Add(right.Scale(step))
	}

	c.theta = math32.Mod(c.theta+c.lookX*delta*c.lookSpeed, 360)

	h := Heading(c.theta)
	c.target = Vec3{X: c.position.X + h.X, Y: c.position.Y + h.Y, Z: 1}
}
