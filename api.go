package appbus

// Callback receives one event. A panic inside a callback is isolated at the
// dispatch boundary.
type Callback func(e Event)

// Middleware composes processing concerns around a Callback.
type Middleware func(next Callback) Callback

// Publisher is the publish side of the bus.
type Publisher interface {
	Emit(e Event) error
}

// Subscriber is the subscribe side of the bus.
type Subscriber interface {
	On(kind Kind, fn Callback) (*Subscription, error)
	Subscribe(fn Callback) (*Subscription, error)
}

// API is the surface collaborators depend on. They receive it by injection
// and never look a bus up through package state.
type API interface {
	Publisher
	Subscriber
}

// Observer receives bus lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnBusEvent(e BusEvent)
}

var _ API = (*Bus)(nil)
