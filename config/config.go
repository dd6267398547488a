// Package config loads host settings from a TOML file.
//
// Every field has a default, so an absent file or an empty table yields a
// runnable configuration. Load applies the file over Defaults and validates
// the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/trickstertwo/appbus"
	"github.com/trickstertwo/appbus/camera"
	"github.com/trickstertwo/appbus/eventlog"
	"github.com/trickstertwo/appbus/input"
	"github.com/trickstertwo/appbus/loop"
	"github.com/trickstertwo/appbus/relay"
)

// Relay modes.
const (
	RelayForward = "forward"
	RelayReplay  = "replay"
)

type Config struct {
	Log      Log      `toml:"log"`
	Loop     Loop     `toml:"loop"`
	Input    Input    `toml:"input"`
	Camera   Camera   `toml:"camera"`
	EventLog EventLog `toml:"eventlog"`
	Relay    Relay    `toml:"relay"`
}

type Log struct {
	Debug   bool `toml:"debug"`
	Console bool `toml:"console"`
	Caller  bool `toml:"caller"`
	// File receives log output while the terminal owns the screen. "~" expands
	// to the home directory.
	File string `toml:"file"`
	// SlowCallback logs subscribers that take longer than this. Zero disables.
	SlowCallback Duration `toml:"slow_callback"`
}

type Loop struct {
	FPS       int `toml:"fps"`
	QueueSize int `toml:"queue_size"`
}

type Input struct {
	KeyRelease Duration `toml:"key_release"`
}

type Camera struct {
	FieldOfView   float32    `toml:"field_of_view"`
	Position      [3]float32 `toml:"position"`
	MovementSpeed float32    `toml:"movement_speed"`
	LookSpeed     float32    `toml:"look_speed"`
	Theta         float32    `toml:"theta"`
	Enabled       bool       `toml:"enabled"`
}

// EventLog traces bus traffic. Kinds maps event kinds to false to mute them.
type EventLog struct {
	Enabled bool            `toml:"enabled"`
	Kinds   map[string]bool `toml:"kinds"`
}

type Relay struct {
	Enabled   bool           `toml:"enabled"`
	Mode      string         `toml:"mode"`
	Transport string         `toml:"transport"`
	Topic     string         `toml:"topic"`
	Group     string         `toml:"group"`
	Session   string         `toml:"session"`
	Kinds     []string       `toml:"kinds"`
	Options   map[string]any `toml:"options"`
}

// Duration is a time.Duration written as a Go duration string ("150ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func Defaults() Config {
	return Config{
		Log: Log{
			Console:      true,
			File:         "appbus.log",
			SlowCallback: Duration(50 * time.Millisecond),
		},
		Loop: Loop{FPS: 60, QueueSize: 256},
		Input: Input{
			KeyRelease: Duration(input.DefaultKeyRelease),
		},
		Camera: Camera{
			FieldOfView:   camera.DefaultFieldOfView,
			MovementSpeed: camera.DefaultMovementSpeed,
			LookSpeed:     camera.DefaultLookSpeed,
		},
		EventLog: EventLog{
			Kinds: map[string]bool{string(appbus.KindAnimationFrame): false},
		},
		Relay: Relay{
			Mode:      RelayForward,
			Transport: "memory",
			Topic:     relay.DefaultTopic,
			Group:     relay.DefaultGroup,
		},
	}
}

// Load reads path over Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c := Defaults()
			return c, c.Validate()
		}
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes TOML from r over Defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	c := Defaults()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("parse error at line %d, column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, c.Validate()
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (c Config) Validate() error {
	var errs []error
	if c.Loop.FPS < 1 || c.Loop.FPS > 1000 {
		errs = append(errs, fmt.Errorf("loop.fps must be in [1, 1000], got %d", c.Loop.FPS))
	}
	if c.Loop.QueueSize < 1 {
		errs = append(errs, errors.New("loop.queue_size must be positive"))
	}
	if c.Input.KeyRelease <= 0 {
		errs = append(errs, errors.New("input.key_release must be positive"))
	}
	if c.Log.SlowCallback < 0 {
		errs = append(errs, errors.New("log.slow_callback must not be negative"))
	}
	if c.Camera.MovementSpeed < 0 || c.Camera.LookSpeed < 0 {
		errs = append(errs, errors.New("camera speeds must not be negative"))
	}
	for k := range c.EventLog.Kinds {
		if !appbus.Known(appbus.Kind(k)) {
			errs = append(errs, fmt.Errorf("eventlog.kinds: unknown kind %q", k))
		}
	}
	for _, k := range c.Relay.Kinds {
		if !appbus.Known(appbus.Kind(k)) {
			errs = append(errs, fmt.Errorf("relay.kinds: unknown kind %q", k))
		}
	}
	if c.Relay.Enabled {
		if c.Relay.Mode != RelayForward && c.Relay.Mode != RelayReplay {
			errs = append(errs, fmt.Errorf("relay.mode must be %q or %q, got %q", RelayForward, RelayReplay, c.Relay.Mode))
		}
		if c.Relay.Transport == "" {
			errs = append(errs, errors.New("relay.transport is required"))
		}
		if c.Relay.Topic == "" {
			errs = append(errs, appbus.ErrInvalidTopic)
		}
	}
	return errors.Join(errs...)
}

// LogPath is Log.File with "~" expanded.
func (c Config) LogPath() (string, error) {
	return homedir.Expand(c.Log.File)
}

func (c Config) LoopOptions() loop.Options {
	return loop.Options{FPS: c.Loop.FPS, QueueSize: c.Loop.QueueSize}
}

func (c Config) InputOptions() input.Options {
	return input.Options{KeyRelease: c.Input.KeyRelease.Std()}
}

func (c Config) CameraOptions() camera.Options {
	p := c.Camera.Position
	return camera.Options{
		FieldOfView:   c.Camera.FieldOfView,
		Position:      camera.Vec3{X: p[0], Y: p[1], Z: p[2]},
		MovementSpeed: c.Camera.MovementSpeed,
		LookSpeed:     c.Camera.LookSpeed,
		Theta:         c.Camera.Theta,
		Enabled:       c.Camera.Enabled,
	}
}

func (c Config) EventLogOptions() eventlog.Options {
	enabled := make(map[appbus.Kind]bool, len(c.EventLog.Kinds))
	for k, v := range c.EventLog.Kinds {
		enabled[appbus.Kind(k)] = v
	}
	return eventlog.Options{Enabled: enabled}
}

func (c Config) RelayOptions() relay.Options {
	kinds := make([]appbus.Kind, 0, len(c.Relay.Kinds))
	for _, k := range c.Relay.Kinds {
		kinds = append(kinds, appbus.Kind(k))
	}
	return relay.Options{
		Topic:   c.Relay.Topic,
		Group:   c.Relay.Group,
		Session: c.Relay.Session,
		Kinds:   kinds,
	}
}
