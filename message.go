package appbus

import (
	"time"
)

// Message is the wire envelope of an Event when it leaves the process
// through a Transport. The Payload is encoded via Codec.
type Message struct {
	// ID is a unique message identifier (transport may assign if empty).
	ID string
	// Name is the event kind.
	Name string
	// Payload is the encoded event value.
	Payload []byte
	// Metadata is a bag for session/source headers.
	Metadata map[string]string
	// ProducedAt is the production timestamp (from injected clock).
	ProducedAt time.Time
}
