// Package control maps raw device events to player intent.
package control

import (
	"errors"
	"math"
	"sync"

	"github.com/trickstertwo/appbus"
)

// DeadZone is the pointer offset below which an axis counts as centred.
const DeadZone = 0.1

var movementKeys = map[string]appbus.Direction{
	"KeyW":       appbus.Forward,
	"ArrowUp":    appbus.Forward,
	"KeyS":       appbus.Backward,
	"ArrowDown":  appbus.Backward,
	"KeyA":       appbus.Left,
	"ArrowLeft":  appbus.Left,
	"KeyD":       appbus.Right,
	"ArrowRight": appbus.Right,
}

// Direction returns the movement bound to a key code.
func Direction(code string) (appbus.Direction, bool) {
	d, ok := movementKeys[code]
	return d, ok
}

// Control turns key presses into movement and pointer motion into camera look.
type Control struct {
	bus  appbus.API
	subs appbus.Subscriptions
	once sync.Once
}

func New(bus appbus.API) (*Control, error) {
	if bus == nil {
		return nil, errors.New("control: nil bus")
	}
	c := &Control{bus: bus}

	for _, bind := range []func() (*appbus.Subscription, error){
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onKeyDown) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onKeyUp) },
		func() (*appbus.Subscription, error) { return appbus.Listen(bus, c.onMouseMove) },
	} {
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
func (c *Control) Destroy() {
	c.once.Do(c.subs.UnsubscribeAll)
}

func (c *Control) onKeyDown(e appbus.KeyDown) {
	if d, ok := Direction(e.Code); ok {
		_ = c.bus.Emit(appbus.PlayerStartMovement{Direction: d})
	}
}

func (c *Control) onKeyUp(e appbus.KeyUp) {
	if d, ok := Direction(e.Code); ok {
		_ = c.bus.Emit(appbus.PlayerStopMovement{Direction: d})
	}
}

func (c *Control) onMouseMove(e appbus.MouseMove) {
	_ = c.bus.Emit(appbus.CameraLook{XPos: deadZone(e.MouseX), YPos: deadZone(e.MouseY)})
}

func deadZone(v float64) float64 {
	if math.Abs(v) < DeadZone {
		return 0
	}
	return v
}
