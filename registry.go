package appbus

import (
	"errors"
	"fmt"
	"sync"
)

// KindFactory returns a zero value of one event variant.
type KindFactory func() Event

// TransportFactory constructs transports from a config blob.
type TransportFactory func(cfg map[string]any) (Transport, error)

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

var (
	kindRegistryMu sync.RWMutex
	kindOrder      = []Kind{
		KindAnimationFrame,
		KindWindowResize,
		KindRendererGeometryUpdate,
		KindKeyDown,
		KindKeyUp,
		KindMouseDown,
		KindMouseUp,
		KindMouseMove,
		KindCameraLook,
		KindPlayerStartMovement,
		KindPlayerStopMovement,
	}
	kindRegistry = map[Kind]KindFactory{
		KindAnimationFrame:         func() Event { return AnimationFrame{} },
		KindWindowResize:           func() Event { return WindowResize{} },
		KindRendererGeometryUpdate: func() Event { return RendererGeometryUpdate{} },
		KindKeyDown:                func() Event { return KeyDown{} },
		KindKeyUp:                  func() Event { return KeyUp{} },
		KindMouseDown:              func() Event { return MouseDown{} },
		KindMouseUp:                func() Event { return MouseUp{} },
		KindMouseMove:              func() Event { return MouseMove{} },
		KindCameraLook:             func() Event { return CameraLook{} },
		KindPlayerStartMovement:    func() Event { return PlayerStartMovement{} },
		KindPlayerStopMovement:     func() Event { return PlayerStopMovement{} },
	}

	transportRegistryMu sync.RWMutex
	transportRegistry   = map[string]TransportFactory{}

	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterKind adds a new event kind. The registry is additive only: an
// existing kind can never be re-registered with another shape.
func RegisterKind(kind Kind, factory KindFactory) error {
	if kind == "" {
		return errors.New("event kind must not be empty")
	}
	if factory == nil {
		return errors.New("kind factory must not be nil")
	}
	if got := factory(); got == nil || got.Kind() != kind {
		return fmt.Errorf("kind factory for %q builds a different kind", kind)
	}

	kindRegistryMu.Lock()
	defer kindRegistryMu.Unlock()
	if _, ok := kindRegistry[kind]; ok {
		return ErrKindRegistered{kind: kind}
	}
	kindRegistry[kind] = factory
	kindOrder = append(kindOrder, kind)
	return nil
}

// NewEvent returns the zero event of kind.
func NewEvent(kind Kind) (Event, error) {
	kindRegistryMu.RLock()
	f, ok := kindRegistry[kind]
	kindRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownKind{kind: kind}
	}
	return f(), nil
}

// Known reports whether kind has been registered.
func Known(kind Kind) bool {
	kindRegistryMu.RLock()
	_, ok := kindRegistry[kind]
	kindRegistryMu.RUnlock()
	return ok
}

// Kinds lists the registered kinds in registration order.
func Kinds() []Kind {
	kindRegistryMu.RLock()
	defer kindRegistryMu.RUnlock()
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// RegisterTransport registers a backend adapter.
func RegisterTransport(name string, factory TransportFactory) error {
	if name == "" {
		return errors.New("transport name must not be empty")
	}
	if factory == nil {
		return errors.New("transport factory must not be nil")
	}
	transportRegistryMu.Lock()
	transportRegistry[name] = factory
	transportRegistryMu.Unlock()
	return nil
}

// NewTransport constructs a transport by name with config.
func NewTransport(name string, cfg map[string]any) (Transport, error) {
	transportRegistryMu.RLock()
	f, ok := transportRegistry[name]
	transportRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(cfg)
}

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("codec name must not be empty")
	}
	if factory == nil {
		return errors.New("codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name or returns an error.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec %q not registered", name)
	}
	return f(), nil
}
