package outbox

import "context"

// Event is anything that can be stored in the outbox, reporter.Request is one.
type Event interface {
	Type() string
}

type EventSerializer[E Event] interface {
	Serialize(event E) (string, error)
}

// EventDispatcher stores an event for later delivery. Dispatching inside a
// unit of work makes the event part of its transaction.
type EventDispatcher[E Event] interface {
	Dispatch(ctx context.Context, event E) error
}
