// Package input turns terminal keyboard, mouse and resize events into bus
// events.
package input

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/appbus"
)

// Sink accepts events from the input goroutine. A *loop.Loop is the usual
// sink: it re-emits them on the loop goroutine.
type Sink interface {
	Post(e appbus.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e appbus.Event) error

func (f SinkFunc) Post(e appbus.Event) error { return f(e) }

// DefaultKeyRelease is how long a key counts as held after its last press.
// Terminals report presses and auto-repeats only, never releases.
const DefaultKeyRelease = 150 * time.Millisecond

const primaryButtons = tcell.Button1 | tcell.Button2 | tcell.Button3

type Options struct {
	// KeyRelease is the delay before a synthesized KeyUp (default: DefaultKeyRelease).
	KeyRelease time.Duration
	Logger     *xlog.Logger
}

// Terminal is the keyboard, mouse and window device of a tcell screen.
type Terminal struct {
	sink       Sink
	keyRelease time.Duration
	logger     *xlog.Logger
	subs       appbus.Subscriptions

	mu        sync.Mutex
	held      map[string]*heldKey
	gen       uint64
	buttons   tcell.ButtonMask
	lastX     int
	lastY     int
	centerX   float64
	centerY   float64
	halfW     float64
	halfH     float64
	destroyed bool
}

// NewTerminal subscribes to geometry updates on bus, which it needs to
// normalize pointer coordinates, and posts device events to sink.
func NewTerminal(bus appbus.Subscriber, sink Sink, opts Options) (*Terminal, error) {
	if bus == nil || sink == nil {
		return nil, errors.New("input: nil bus or sink")
	}
	if opts.KeyRelease <= 0 {
		opts.KeyRelease = DefaultKeyRelease
	}
	if opts.Logger == nil {
		opts.Logger = xlog.Default()
	}

	t := &Terminal{
		sink:       sink,
		keyRelease: opts.KeyRelease,
		logger:     opts.Logger,
		held:       make(map[string]*heldKey),
		lastX:      -1,
		lastY:      -1,
		halfW:      1,
		halfH:      1,
	}

	sub, err := appbus.Listen(bus, t.handleGeometry)
	if err != nil {
		return nil, err
	}
	t.subs.Add(sub)
	return t, nil
}

// Run feeds screen events to Handle until ctx ends, the screen stops or the
// user asks to quit with Ctrl+C.
func (t *Terminal) Run(ctx context.Context, screen tcell.Screen) error {
	events := make(chan tcell.Event, 64)
	quit := make(chan struct{})
	defer close(quit)
	go screen.ChannelEvents(events, quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok || ev == nil {
				return nil
			}
			if t.Handle(ev) {
				return nil
			}
		}
	}
}

// Handle translates one tcell event. It reports true when the user asked to quit.
func (t *Terminal) Handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyCtrlC {
			return true
		}
		t.handleKey(ev)
	case *tcell.EventMouse:
		t.handleMouse(ev)
	case *tcell.EventResize:
		t.post(appbus.WindowResize{})
	}
	return false
}

// Destroy stops pending key releases and unsubscribes. Held keys get their
// KeyUp so no consumer is left with a stuck key.
func (t *Terminal) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	released := make([]string, 0, len(t.held))
	for code, k := range t.held {
		k.timer.Stop()
		released = append(released, code)
	}
	t.held = nil
	t.mu.Unlock()

	for _, code := range released {
		t.post(appbus.KeyUp{Code: code})
	}
	t.subs.UnsubscribeAll()
}

func (t *Terminal) handleKey(ev *tcell.EventKey) {
	code := KeyCode(ev)
	if code == "" {
		return
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	prev, repeat := t.held[code]
	if repeat {
		// Auto-repeat of a held key extends the hold.
		prev.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.held[code] = &heldKey{gen: gen, timer: time.AfterFunc(t.keyRelease, func() { t.release(code, gen) })}
	t.mu.Unlock()

	if !repeat {
		t.post(appbus.KeyDown{Code: code})
	}
}

// release fires when a hold expires. A stale generation means the key was
// pressed again after this timer was armed.
func (t *Terminal) release(code string, gen uint64) {
	t.mu.Lock()
	k, ok := t.held[code]
	if t.destroyed || !ok || k.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.held, code)
	t.mu.Unlock()

	t.post(appbus.KeyUp{Code: code})
}

type heldKey struct {
	gen   uint64
	timer *time.Timer
}

func (t *Terminal) handleMouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	pressed := ev.Buttons() & primaryButtons

	t.mu.Lock()
	prev := t.buttons
	t.buttons = pressed
	moved := x != t.lastX || y != t.lastY
	t.lastX, t.lastY = x, y
	mx := (float64(x) - t.centerX) / t.halfW
	my := (t.centerY - float64(y)) / t.halfH
	t.mu.Unlock()

	if prev == tcell.ButtonNone && pressed != tcell.ButtonNone {
		t.post(appbus.MouseDown{})
	}
	if moved {
		t.post(appbus.MouseMove{MouseX: mx, MouseY: my})
	}
	if prev != tcell.ButtonNone && pressed == tcell.ButtonNone {
		t.post(appbus.MouseUp{})
	}
}

func (t *Terminal) handleGeometry(e appbus.RendererGeometryUpdate) {
	halfW := e.AppWidth * 0.5
	halfH := e.AppHeight * 0.5
	if halfW <= 0 {
		halfW = 1
	}
	if halfH <= 0 {
		halfH = 1
	}

	t.mu.Lock()
	t.halfW, t.halfH = halfW, halfH
	t.centerX = e.OffsetLeft + halfW
	t.centerY = e.OffsetTop + halfH
	t.mu.Unlock()
}

func (t *Terminal) post(e appbus.Event) {
	if err := t.sink.Post(e); err != nil {
		t.logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("input: event dropped")
	}
}

// KeyCode names a key the way browsers name KeyboardEvent.code ("KeyW",
// "ArrowUp", "Digit1", "Escape"). Keys without a name map to "".
func KeyCode(ev *tcell.EventKey) string {
	switch ev.Key() {
	case tcell.KeyUp:
		return "ArrowUp"
	case tcell.KeyDown:
		return "ArrowDown"
	case tcell.KeyLeft:
		return "ArrowLeft"
	case tcell.KeyRight:
		return "ArrowRight"
	case tcell.KeyEscape:
		return "Escape"
	case tcell.KeyEnter:
		return "Enter"
	case tcell.KeyTab:
		return "Tab"
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return "Backspace"
	case tcell.KeyDelete:
		return "Delete"
	case tcell.KeyRune:
		return runeCode(ev.Rune())
	}
	return ""
}

func runeCode(r rune) string {
	switch {
	case r == ' ':
		return "Space"
	case r >= '0' && r <= '9':
		return "Digit" + string(r)
	case r < unicode.MaxASCII && unicode.IsLetter(r):
		return "Key" + string(unicode.ToUpper(r))
	}
	return ""
}
