package appbus

import (
	"context"
)

// Delivery encapsulates a received message with Ack/Nack semantics.
type Delivery interface {
	Message() *Message
	Ack(ctx context.Context) error
	Nack(ctx context.Context, reason error) error
}

// TransportSubscription is an active transport-level subscription.
type TransportSubscription interface {
	Close() error
}

// Transport is the Strategy interface for carrying events between processes,
// e.g. to journal a session or to feed input from a remote device.
type Transport interface {
	// Publish sends messages to a topic/stream.
	Publish(ctx context.Context, topic string, msgs ...*Message) error
	// Subscribe binds a handler to a topic/stream within a consumer group.
	// The transport drives delivery in background and honors ctx.
	Subscribe(ctx context.Context, topic, group string, handler func(Delivery)) (TransportSubscription, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
