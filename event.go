package appbus

import "fmt"

// Kind is the discriminant tag of an event variant. A kind is stable for the
// lifetime of its variant and is never reused for a different payload shape.
type Kind string

const (
	KindAnimationFrame         Kind = "AnimationFrame"
	KindWindowResize           Kind = "WindowResize"
	KindRendererGeometryUpdate Kind = "RendererGeometryUpdate"
	KindKeyDown                Kind = "KeyDown"
	KindKeyUp                  Kind = "KeyUp"
	KindMouseDown              Kind = "MouseDown"
	KindMouseUp                Kind = "MouseUp"
	KindMouseMove              Kind = "MouseMove"
	KindCameraLook             Kind = "CameraLook"
	KindPlayerStartMovement    Kind = "PlayerStartMovement"
	KindPlayerStopMovement     Kind = "PlayerStopMovement"
)

func (k Kind) String() string { return string(k) }

// Event is a tagged, immutable value traveling the bus.
// Variants are plain value types, so receivers always get their own copy.
type Event interface {
	Kind() Kind
}

// Direction enumerates player movement directions.
type Direction int

const (
	Forward Direction = iota
	Backward
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// AnimationFrame is emitted once per rendered frame.
type AnimationFrame struct {
	// Delta is the number of seconds since the previous frame.
	Delta float64 `json:"delta"`
}

// WindowResize is a marker event: the host surface changed size.
type WindowResize struct{}

// RendererGeometryUpdate carries the render target geometry after a resize.
type RendererGeometryUpdate struct {
	AppWidth   float64 `json:"appWidth"`
	AppHeight  float64 `json:"appHeight"`
	OffsetLeft float64 `json:"offsetLeft"`
	OffsetTop  float64 `json:"offsetTop"`
}

// KeyDown reports a pressed key by its platform code (e.g. "KeyW").
type KeyDown struct {
	Code string `json:"code"`
}

// KeyUp reports a released key by its platform code.
type KeyUp struct {
	Code string `json:"code"`
}

type MouseDown struct{}

type MouseUp struct{}

// MouseMove carries pointer coordinates, normalized by the input device.
type MouseMove struct {
	MouseX float64 `json:"mouseX"`
	MouseY float64 `json:"mouseY"`
}

// CameraLook asks the camera to turn.
type CameraLook struct {
	XPos float64 `json:"xPos"`
	YPos float64 `json:"yPos"`
}

type PlayerStartMovement struct {
	Direction Direction `json:"direction"`
}

type PlayerStopMovement struct {
	Direction Direction `json:"direction"`
}

func (AnimationFrame) Kind() Kind         { return KindAnimationFrame }
func (WindowResize) Kind() Kind           { return KindWindowResize }
func (RendererGeometryUpdate) Kind() Kind { return KindRendererGeometryUpdate }
func (KeyDown) Kind() Kind                { return KindKeyDown }
func (KeyUp) Kind() Kind                  { return KindKeyUp }
func (MouseDown) Kind() Kind              { return KindMouseDown }
func (MouseUp) Kind() Kind                { return KindMouseUp }
func (MouseMove) Kind() Kind              { return KindMouseMove }
func (CameraLook) Kind() Kind             { return KindCameraLook }
func (PlayerStartMovement) Kind() Kind    { return KindPlayerStartMovement }
func (PlayerStopMovement) Kind() Kind     { return KindPlayerStopMovement }

var (
	_ Event = AnimationFrame{}
	_ Event = WindowResize{}
	_ Event = RendererGeometryUpdate{}
	_ Event = KeyDown{}
	_ Event = KeyUp{}
	_ Event = MouseDown{}
	_ Event = MouseUp{}
	_ Event = MouseMove{}
	_ Event = CameraLook{}
	_ Event = PlayerStartMovement{}
	_ Event = PlayerStopMovement{}
)
