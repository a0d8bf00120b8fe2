package reporter

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
)

const eventKey = "event"

// Config of a Reporter. Only Sender is required.
type Config[R any] struct {
	Rules  Rules
	Common Params
	Sender Sender[R]

	// Validator defaults to SchemaValidator.
	Validator      Validator
	ValidationMode ValidationMode

	// Logger defaults to the logrus standard logger.
	Logger logging.Logger
	// ErrorHandler defaults to logging the failure.
	ErrorHandler ErrorHandler
}

// Reporter validates events against its rules and hands them to the sender
// together with the common params. It is safe for concurrent use.
type Reporter[R any] struct {
	rules     Rules
	sender    Sender[R]
	validator Validator
	mode      ValidationMode

	logger       logging.Logger
	errorHandler ErrorHandler

	commonMu sync.RWMutex
	common   Params

	detached inflight
}

// New copies rules and common params, later changes to config do not affect
// the reporter. It panics when Sender is nil.
func New[R any](config Config[R]) *Reporter[R] {
	if config.Sender == nil {
		panic("reporter sender is required")
	}
	r := &Reporter[R]{
		rules:        config.Rules.clone(),
		common:       config.Common.clone(),
		sender:       config.Sender,
		validator:    config.Validator,
		mode:         config.ValidationMode,
		logger:       config.Logger,
		errorHandler: config.ErrorHandler,
	}
	if r.validator == nil {
		r.validator = SchemaValidator{}
	}
	if r.errorHandler == nil {
		r.errorHandler = r.logFailure
	}
	return r
}

// Send validates params, merges them over the common params and calls the
// sender once. Sender errors are returned unchanged.
func (r *Reporter[R]) Send(ctx context.Context, event string, params Params) (R, error) {
	return r.send(ctx, event, params, func() {})
}

// send calls entered right before the sender is invoked.
func (r *Reporter[R]) send(ctx context.Context, event string, params Params, entered func()) (R, error) {
	var zero R
	if err := r.validator.Validate(event, params, r.rules); err != nil {
		if r.mode == ValidationStrict {
			return zero, err
		}
		r.logWarning(event, err, "event does not match its rules")
	}

	merged := r.merge(params)
	entered()
	result, err := r.sender.Send(ctx, event, merged)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// UpdateCommon overwrites the given common params, others are kept.
func (r *Reporter[R]) UpdateCommon(partial Params) {
	r.commonMu.Lock()
	defer r.commonMu.Unlock()

	for k, v := range partial {
		r.common[k] = v
	}
}

// Common returns a copy of the common params.
func (r *Reporter[R]) Common() Params {
	r.commonMu.RLock()
	defer r.commonMu.RUnlock()

	return r.common.clone()
}

// Rules returns a copy of the rules.
func (r *Reporter[R]) Rules() Rules {
	return r.rules.clone()
}

// Wait blocks until no detached report is in flight or ctx is done. Reports
// started after Wait returned are not waited for, stop calling wrapped
// functions first to drain the reporter on shutdown.
func (r *Reporter[R]) Wait(ctx context.Context) error {
	select {
	case <-r.detached.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter[R]) merge(params Params) Params {
	r.commonMu.RLock()
	merged := make(Params, len(r.common)+len(params))
	for k, v := range r.common {
		merged[k] = v
	}
	r.commonMu.RUnlock()

	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// sendDetached starts a report without waiting for it. The returned channel
// is closed once the report reached the sender or failed before it. The
// caller's cancellation does not abort the report.
func (r *Reporter[R]) sendDetached(ctx context.Context, event string, params Params) <-chan struct{} {
	ctx = context.WithoutCancel(ctx)
	started := make(chan struct{})
	var once sync.Once
	entered := func() {
		once.Do(func() {
			close(started)
		})
	}

	r.detached.add()
	go func() {
		defer r.detached.done()
		defer func() {
			if p := recover(); p != nil {
				r.errorHandler(event, liberr.Recovered(p))
			}
		}()
		defer entered()

		_, err := r.send(ctx, event, params, entered)
		entered()
		if err != nil {
			r.errorHandler(event, err)
		}
	}()
	return started
}

func (r *Reporter[R]) logFailure(event string, err error) {
	if r.logger != nil {
		r.logger.WithField(eventKey, event).Error(err, "failed to report event")
		return
	}
	logrus.WithError(err).WithField(eventKey, event).Error("failed to report event")
}

func (r *Reporter[R]) logWarning(event string, err error, msg string) {
	if r.logger != nil {
		r.logger.WithField(eventKey, event).Warning(err, msg)
		return
	}
	logrus.WithError(err).WithField(eventKey, event).Warn(msg)
}

// inflight counts detached reports. Unlike sync.WaitGroup it may be waited
// on while reports are being added.
type inflight struct {
	mu     sync.Mutex
	count  int
	idleCh chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		f.idleCh = make(chan struct{})
	}
	f.count++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count--
	if f.count == 0 {
		close(f.idleCh)
	}
}

// idle is closed once no report is in flight.
func (f *inflight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.idleCh
}
