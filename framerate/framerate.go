// Package framerate measures frames per second from AnimationFrame deltas.
package framerate

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/trickstertwo/appbus"
)

// DefaultWindow is the span of frames averaged into one reading.
const DefaultWindow = time.Second

// Reading is a frame rate sample.
type Reading struct {
	FPS       float64
	FrameTime time.Duration
	MinFPS    float64
	MaxFPS    float64
	Frames    uint64
}

// Meter averages frame deltas over a sliding time window.
type Meter struct {
	window float64
	subs   appbus.Subscriptions
	once   sync.Once

	mu      sync.Mutex
	deltas  []float64
	sum     float64
	reading Reading
}

func New(bus appbus.Subscriber, window time.Duration) (*Meter, error) {
	if bus == nil {
		return nil, errors.New("framerate: nil bus")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Meter{window: window.Seconds()}

	sub, err := appbus.Listen(bus, m.onFrame)
	if err != nil {
		return nil, err
	}
	m.subs.Add(sub)
	return m, nil
}

func (m *Meter) Reading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading
}

// Destroy unsubscribes. Idempotent.
func (m *Meter) Destroy() {
	m.once.Do(m.subs.UnsubscribeAll)
}

func (m *Meter) onFrame(e appbus.AnimationFrame) {
	if e.Delta <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deltas = append(m.deltas, e.Delta)
	m.sum += e.Delta
	// Keep at least one frame so a single slow frame still yields a reading.
	for len(m.deltas) > 1 && m.sum-m.deltas[0] >= m.window {
		m.sum -= m.deltas[0]
		m.deltas = m.deltas[1:]
	}

	r := &m.reading
	r.Frames++
	avg := m.sum / float64(len(m.deltas))
	r.FPS = 1 / avg
	r.FrameTime = time.Duration(math.Round(avg * float64(time.Second)))
	if r.Frames == 1 || r.FPS < r.MinFPS {
		r.MinFPS = r.FPS
	}
	if r.FPS > r.MaxFPS {
		r.MaxFPS = r.FPS
	}
}
