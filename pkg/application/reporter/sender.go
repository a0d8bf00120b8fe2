package reporter

import "context"

type Params map[string]interface{}

func (p Params) clone() Params {
	result := make(Params, len(p))
	for k, v := range p {
		result[k] = v
	}
	return result
}

// Request is a single dispatched event with its merged params.
type Request struct {
	Event  string `json:"event"`
	Params Params `json:"params,omitempty"`
}

func (r Request) Type() string {
	return r.Event
}

// Sender delivers an event. R is whatever the transport reports back,
// use struct{} when there is nothing to return.
type Sender[R any] interface {
	Send(ctx context.Context, event string, params Params) (R, error)
}

type SenderFunc[R any] func(ctx context.Context, event string, params Params) (R, error)

func (f SenderFunc[R]) Send(ctx context.Context, event string, params Params) (R, error) {
	return f(ctx, event, params)
}

// ErrorHandler receives failures of reports nobody waits for.
type ErrorHandler func(event string, err error)
