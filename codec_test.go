package appbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type teleport struct {
	X float64 `json:"x"`
}

func (teleport) Kind() Kind { return "Teleport" }

func TestKinds_DeclarationOrder(t *testing.T) {
	kinds := Kinds()
	require.GreaterOrEqual(t, len(kinds), 11)
	assert.Equal(t, KindAnimationFrame, kinds[0])
	assert.Equal(t, KindPlayerStopMovement, kinds[10])
	for _, k := range kinds {
		ev, err := NewEvent(k)
		require.NoError(t, err)
		assert.Equal(t, k, ev.Kind())
	}
}

func TestRegisterKind_AdditiveOnly(t *testing.T) {
	err := RegisterKind(KindKeyDown, func() Event { return KeyDown{} })
	assert.ErrorAs(t, err, &ErrKindRegistered{})

	err = RegisterKind("Mismatch", func() Event { return KeyUp{} })
	assert.Error(t, err)

	if !Known("Teleport") {
		require.NoError(t, RegisterKind("Teleport", func() Event { return teleport{} }))
	}
	assert.True(t, Known("Teleport"))
	assert.Contains(t, Kinds(), Kind("Teleport"))
}

func TestEncodeDecodeEvent(t *testing.T) {
	at := time.Unix(1700000000, 0)
	cases := []Event{
		AnimationFrame{Delta: 0.032},
		WindowResize{},
		RendererGeometryUpdate{AppWidth: 800, AppHeight: 600, OffsetLeft: 10, OffsetTop: 20},
		KeyDown{Code: "ArrowUp"},
		MouseMove{MouseX: -0.25, MouseY: 0.75},
		PlayerStopMovement{Direction: Right},
	}
	for _, e := range cases {
		t.Run(string(e.Kind()), func(t *testing.T) {
			msg, err := EncodeEvent(JSONCodec{}, e, at, map[string]string{"session": "s1"})
			require.NoError(t, err)
			assert.Equal(t, string(e.Kind()), msg.Name)
			assert.Equal(t, at, msg.ProducedAt)

			got, err := DecodeEvent(JSONCodec{}, msg)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent(nil, &Message{Name: "NoSuchKind", Payload: []byte(`{}`)})
	assert.ErrorAs(t, err, &ErrUnknownKind{})
}

func TestDecodeEvent_BadPayload(t *testing.T) {
	_, err := DecodeEvent(nil, &Message{Name: string(KindKeyDown), Payload: []byte(`{"code":`)})
	assert.Error(t, err)
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("msgpack")
	assert.Error(t, err)
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "right", Right.String())
	assert.Equal(t, "direction(9)", Direction(9).String())
}
