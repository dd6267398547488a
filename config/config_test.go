package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/appbus"
	"github.com/trickstertwo/appbus/camera"
)

func TestDefaults_AreValid(t *testing.T) {
	c := Defaults()
	require.NoError(t, c.Validate())

	assert.Equal(t, 60, c.LoopOptions().FPS)
	assert.Equal(t, 150*time.Millisecond, c.InputOptions().KeyRelease)
	assert.Equal(t, camera.DefaultFieldOfView, c.CameraOptions().FieldOfView)
	assert.False(t, c.EventLogOptions().Enabled[appbus.KindAnimationFrame])
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appbus.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
debug = true
slow_callback = "5ms"

[loop]
fps = 30

[input]
key_release = "200ms"

[camera]
field_of_view = 60.0
position = [1.0, 2.0, 3.0]
enabled = true

[eventlog]
enabled = true

[relay]
enabled = true
mode = "replay"
transport = "redis-streams"
topic = "journal"
session = "s-42"
kinds = ["KeyDown", "KeyUp"]

[relay.options]
addr = "localhost:6379"
batch_size = 16
block = "1s"
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.True(t, c.Log.Debug)
	assert.Equal(t, 5*time.Millisecond, c.Log.SlowCallback.Std())
	assert.Equal(t, 30, c.Loop.FPS)
	assert.Equal(t, 256, c.Loop.QueueSize)
	assert.Equal(t, 200*time.Millisecond, c.InputOptions().KeyRelease)

	cam := c.CameraOptions()
	assert.Equal(t, float32(60), cam.FieldOfView)
	assert.Equal(t, camera.Vec3{X: 1, Y: 2, Z: 3}, cam.Position)
	assert.Equal(t, camera.DefaultLookSpeed, cam.LookSpeed)
	assert.True(t, cam.Enabled)

	assert.True(t, c.EventLog.Enabled)

	ro := c.RelayOptions()
	assert.Equal(t, RelayReplay, c.Relay.Mode)
	assert.Equal(t, "journal", ro.Topic)
	assert.Equal(t, "s-42", ro.Session)
	assert.Equal(t, []appbus.Kind{appbus.KindKeyDown, appbus.KindKeyUp}, ro.Kinds)
	assert.Equal(t, "localhost:6379", c.Relay.Options["addr"])
	assert.EqualValues(t, 16, c.Relay.Options["batch_size"])
	assert.Equal(t, "1s", c.Relay.Options["block"])
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "[loop]\nfrobnicate = 1\n",
		"bad duration":     "[input]\nkey_release = \"soon\"\n",
		"fps out of range": "[loop]\nfps = 0\n",
		"unknown kind":     "[eventlog.kinds]\nTeleport = false\n",
		"bad relay mode":   "[relay]\nenabled = true\nmode = \"mirror\"\n",
		"syntax":           "[loop\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	c := Defaults()
	c.Loop.FPS = -1
	c.Loop.QueueSize = 0
	c.Relay.Enabled = true
	c.Relay.Topic = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop.fps")
	assert.Contains(t, err.Error(), "loop.queue_size")
	assert.ErrorIs(t, err, appbus.ErrInvalidTopic)
}

func TestEncode_RoundTrip(t *testing.T) {
	c := Defaults()
	c.Loop.FPS = 24
	c.Input.KeyRelease = Duration(80 * time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	assert.Contains(t, buf.String(), "80ms")

	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, 24, got.Loop.FPS)
	assert.Equal(t, 80*time.Millisecond, got.Input.KeyRelease.Std())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appbus.toml")
	require.NoError(t, os.WriteFile(path, []byte("[loop]\nfps = 60\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan Config, 4)
	failed := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { applied <- c }, func(err error) { failed <- err })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[loop]\nfps = 30\n"), 0o600))

	select {
	case c := <-applied:
		assert.Equal(t, 30, c.Loop.FPS)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	require.NoError(t, os.WriteFile(path, []byte("[loop]\nfps = -3\n"), 0o600))
	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "loop.fps")
	case <-time.After(3 * time.Second):
		t.Fatal("invalid config was not reported")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_NilApply(t *testing.T) {
	assert.Error(t, Watch(context.Background(), "appbus.toml", nil, nil))
}
