package appbus

import (
	"errors"
	"fmt"
)

// UsageError signals a programmer error against the bus API, such as using a
// destroyed bus. It is never recovered from internally.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string { return fmt.Sprintf("appbus: %s: %s", e.Op, e.Msg) }

// Is makes every UsageError match ErrUsage.
func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// SubscriberError wraps a panic raised by a subscriber callback. It is caught
// at the dispatch boundary, logged and reported to observers, never returned
// to the publisher.
type SubscriberError struct {
	Kind           Kind
	SubscriptionID uint64
	Recovered      any
	Stack          []byte
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("appbus: subscriber %d panicked on %s: %v", e.SubscriptionID, e.Kind, e.Recovered)
}

// Unwrap exposes the recovered value when it was itself an error.
func (e *SubscriberError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("unknown transport: %s", e.name) }

type ErrUnknownKind struct{ kind Kind }

func (e ErrUnknownKind) Error() string { return fmt.Sprintf("unknown event kind: %s", e.kind) }

type ErrKindRegistered struct{ kind Kind }

func (e ErrKindRegistered) Error() string {
	return fmt.Sprintf("event kind already registered: %s", e.kind)
}

var (
	ErrUsage = errors.New("appbus: usage error")

	ErrEmitAfterDestroy      = &UsageError{Op: "emit", Msg: "emit after destroy"}
	ErrOnAfterDestroy        = &UsageError{Op: "on", Msg: "subscribe after destroy"}
	ErrSubscribeAfterDestroy = &UsageError{Op: "subscribe", Msg: "subscribe after destroy"}
	ErrNilEvent              = &UsageError{Op: "emit", Msg: "nil event"}
	ErrNilCallback           = &UsageError{Op: "subscribe", Msg: "nil callback"}
	ErrEmptyKind             = &UsageError{Op: "on", Msg: "empty kind"}

	ErrNoTransportConfigured       = errors.New("appbus: no transport configured")
	ErrObserverPoolShutdownTimeout = errors.New("appbus: observer pool shutdown timeout")
	ErrInvalidTopic                = errors.New("appbus: topic must not be empty")
)
