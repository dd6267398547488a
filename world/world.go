// Package world holds the scene objects and animates them per frame.
package world

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"

	"github.com/trickstertwo/appbus"
	"github.com/trickstertwo/appbus/camera"
)

// ObjectKind classifies scene objects.
type ObjectKind string

const (
	HemisphereLight ObjectKind = "hemisphere-light"
	SpotLight       ObjectKind = "spot-light"
	Box             ObjectKind = "box"
	Model           ObjectKind = "model"
)

// Object is one scene node. Rotation is in radians around each axis.
type Object struct {
	Name     string
	Kind     ObjectKind
	Position camera.Vec3
	Rotation camera.Vec3
	Color    uint32
	Target   string
}

// Animator advances one object by delta seconds.
type Animator func(o *Object, delta float32)

// Spin turns an object around Z at radPerSec.
func Spin(radPerSec float32) Animator {
	return func(o *Object, delta float32) {
		o.Rotation.Z = math32.Mod(o.Rotation.Z+radPerSec*delta, 2*math32.Pi)
	}
}

// Drift moves an object along Y at unitsPerSec.
func Drift(unitsPerSec float32) Animator {
	return func(o *Object, delta float32) {
		o.Position.Y += unitsPerSec * delta
	}
}

// World is the scene. It animates on AnimationFrame and frees everything on Destroy.
type World struct {
	subs appbus.Subscriptions
	once sync.Once

	mu        sync.Mutex
	objects   []*Object
	animators map[string]Animator
	elapsed   float32
	destroyed bool
}

// New builds the default scene: a hemisphere light, a spot light aimed at a
// box, and the tank.
func New(bus appbus.Subscriber) (*World, error) {
	if bus == nil {
		return nil, errors.New("world: nil bus")
	}
	w := &World{animators: make(map[string]Animator)}

	w.Add(&Object{Name: "sky", Kind: HemisphereLight, Color: 0xeeeeee})
	w.Add(&Object{
		Name:     "box",
		Kind:     Box,
		Position: camera.Vec3{X: 3, Y: 15, Z: -2},
		Rotation: camera.Vec3{X: 31 * math32.Pi / 180, Y: 51 * math32.Pi / 180},
		Color:    0xff0000,
	})
	w.Add(&Object{Name: "spot", Kind: SpotLight, Position: camera.Vec3{Z: 30}, Color: 0x005500, Target: "box"})
	w.Add(&Object{Name: "tank", Kind: Model, Position: camera.Vec3{X: 15, Y: -30, Z: -3}, Rotation: camera.Vec3{X: math32.Pi / 2}},
		Spin(math32.Pi/4))

	sub, err := appbus.Listen(bus, w.onFrame)
	if err != nil {
		return nil, err
	}
	w.subs.Add(sub)
	return w, nil
}

// Add places o in the scene with optional animators. Names are unique; a
// later Add with the same name replaces the object.
func (w *World) Add(o *Object, anim ...Animator) {
	if o == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	for i, existing := range w.objects {
		if existing.Name == o.Name {
			w.objects = append(w.objects[:i], w.objects[i+1:]...)
			break
		}
	}
	w.objects = append(w.objects, o)
	delete(w.animators, o.Name)
	switch len(anim) {
	case 0:
	case 1:
		w.animators[o.Name] = anim[0]
	default:
		w.animators[o.Name] = func(o *Object, delta float32) {
			for _, a := range anim {
				a(o, delta)
			}
		}
	}
}

// Objects returns copies of the scene objects in insertion order.
func (w *World) Objects() []Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Object, len(w.objects))
	for i, o := range w.objects {
		out[i] = *o
	}
	return out
}

// Object returns a copy of the named object.
func (w *World) Object(name string) (Object, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.objects {
		if o.Name == name {
			return *o, true
		}
	}
	return Object{}, false
}

// Elapsed is the animated time in seconds.
func (w *World) Elapsed() float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Destroy unsubscribes and releases every object. Idempotent.
func (w *World) Destroy() {
	w.once.Do(func() {
		w.subs.UnsubscribeAll()
		w.mu.Lock()
		w.destroyed = true
		w.objects = nil
		w.animators = nil
		w.mu.Unlock()
	})
}

func (w *World) onFrame(e appbus.AnimationFrame) {
	delta := float32(e.Delta)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.elapsed += delta
	for _, o := range w.objects {
		if a, ok := w.animators[o.Name]; ok {
			a(o, delta)
		}
	}
}
