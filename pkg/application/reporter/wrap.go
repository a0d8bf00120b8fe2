package reporter

import (
	"context"

	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
)

type Order string

const (
	OrderBefore Order = "before"
	OrderAfter  Order = "after"
)

// ReportOptions describes the report fired around a wrapped call.
// Common is merged under Params.
type ReportOptions struct {
	Event  string
	Params Params
	Common Params
	Order  Order
	Always bool
}

func (o ReportOptions) params() Params {
	merged := make(Params, len(o.Common)+len(o.Params))
	for k, v := range o.Common {
		merged[k] = v
	}
	for k, v := range o.Params {
		merged[k] = v
	}
	return merged
}

// Prepare builds the report for a call outcome. It receives a nil error and
// the zero result once at wrap time; Order and Always of that first answer
// apply to every call of the wrapped function.
type Prepare[T any] func(err error, result T) ReportOptions

// WrapFunc returns target with reports attached. Reports never change what
// the wrapped function returns: errors and panics of target reach the caller
// unchanged and failures of the reports go to the ErrorHandler.
func WrapFunc[R, A, T any](r *Reporter[R], target func(context.Context, A) (T, error), prepare Prepare[T]) func(context.Context, A) (T, error) {
	var zero T
	static := prepare(nil, zero)
	order, always := static.Order, static.Always

	return func(ctx context.Context, arg A) (result T, err error) {
		if order == OrderBefore {
			// target starts once the report reached the sender, not after it finished
			<-r.sendDetached(ctx, static.Event, static.params())
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			p := recover()
			if p == nil {
				// runtime.Goexit
				return
			}
			if order == OrderAfter && always {
				r.report(ctx, func() ReportOptions {
					return prepare(liberr.Recovered(p), zero)
				})
			}
			panic(p)
		}()

		result, err = target(ctx, arg)
		completed = true

		if err != nil {
			if order == OrderAfter && always {
				r.report(ctx, func() ReportOptions {
					return prepare(err, zero)
				})
			}
			return result, err
		}

		if order == OrderAfter {
			r.report(ctx, func() ReportOptions {
				return prepare(nil, result)
			})
		}
		return result, nil
	}
}

func Wrap[R, T any](r *Reporter[R], target func(context.Context) (T, error), prepare Prepare[T]) func(context.Context) (T, error) {
	wrapped := WrapFunc(r, func(ctx context.Context, _ struct{}) (T, error) {
		return target(ctx)
	}, prepare)
	return func(ctx context.Context) (T, error) {
		return wrapped(ctx, struct{}{})
	}
}

// report calls prepare on the caller's goroutine and dispatches the result
// detached. A panicking prepare is handed to the ErrorHandler.
func (r *Reporter[R]) report(ctx context.Context, prepare func() ReportOptions) {
	options, err := func() (options ReportOptions, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = liberr.Recovered(p)
			}
		}()
		return prepare(), nil
	}()
	if err != nil {
		r.errorHandler("", err)
		return
	}
	r.sendDetached(ctx, options.Event, options.params())
}
