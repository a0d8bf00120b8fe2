package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
)

type sentEvent struct {
	event  string
	params Params
	ctxErr error
}

type recordingSender struct {
	mu     sync.Mutex
	calls  []sentEvent
	err    error
	onSend func()
}

func (s *recordingSender) Send(ctx context.Context, event string, params Params) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sentEvent{event: event, params: params, ctxErr: ctx.Err()})
	s.mu.Unlock()

	if s.onSend != nil {
		s.onSend()
	}
	if s.err != nil {
		return "", s.err
	}
	return "sent:" + event, nil
}

func (s *recordingSender) Calls() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.calls...)
}

type logRecord struct {
	level  string
	err    error
	fields logging.Fields
}

type fakeLogger struct {
	mu      *sync.Mutex
	records *[]logRecord
	fields  logging.Fields
}

func newFakeLogger() *fakeLogger {
	return &fakeLogger{mu: &sync.Mutex{}, records: &[]logRecord{}, fields: logging.Fields{}}
}

func (l *fakeLogger) WithField(key string, value interface{}) logging.Logger {
	return l.WithFields(logging.Fields{key: value})
}

func (l *fakeLogger) WithFields(fields logging.Fields) logging.Logger {
	merged := logging.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &fakeLogger{mu: l.mu, records: l.records, fields: merged}
}

func (l *fakeLogger) Info(...interface{}) {
	l.record("info", nil)
}

func (l *fakeLogger) Warning(err error, _ ...interface{}) {
	l.record("warning", err)
}

func (l *fakeLogger) Error(err error, _ ...interface{}) {
	l.record("error", err)
}

func (l *fakeLogger) record(level string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, logRecord{level: level, err: err, fields: l.fields})
}

func (l *fakeLogger) Records() []logRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logRecord(nil), *l.records...)
}

func waitDetached[R any](t *testing.T, r *Reporter[R]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestReporterSend(t *testing.T) {
	t.Run("merges common params under event params", func(t *testing.T) {
		sender := &recordingSender{}
		r := New[string](Config[string]{
			Rules:  testRules,
			Common: Params{"app": "shop", "x": 0},
			Sender: sender,
		})

		result, err := r.Send(context.Background(), "click", Params{"button": "buy", "x": 12})
		require.NoError(t, err)
		assert.Equal(t, "sent:click", result)

		calls := sender.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "click", calls[0].event)
		assert.Equal(t, Params{"app": "shop", "button": "buy", "x": 12}, calls[0].params)
	})

	t.Run("sender error is propagated", func(t *testing.T) {
		sendErr := errors.New("backend is down")
		sender := &recordingSender{err: sendErr}
		r := New[string](Config[string]{Rules: testRules, Sender: sender})

		result, err := r.Send(context.Background(), "click", Params{"button": "buy"})
		assert.Equal(t, sendErr, err)
		assert.Empty(t, result)
		assert.Len(t, sender.Calls(), 1)
	})

	t.Run("strict validation blocks dispatch", func(t *testing.T) {
		sender := &recordingSender{}
		r := New[string](Config[string]{
			Rules:          testRules,
			Sender:         sender,
			ValidationMode: ValidationStrict,
		})

		_, err := r.Send(context.Background(), "click", Params{"x": "far"})
		assert.ErrorIs(t, err, ErrInvalidParams)

		_, err = r.Send(context.Background(), "logout", nil)
		assert.ErrorIs(t, err, ErrUnknownEvent)

		assert.Empty(t, sender.Calls())
	})

	t.Run("advisory validation logs and dispatches", func(t *testing.T) {
		sender := &recordingSender{}
		logger := newFakeLogger()
		r := New[string](Config[string]{
			Rules:  testRules,
			Sender: sender,
			Logger: logger,
		})

		_, err := r.Send(context.Background(), "click", Params{"x": "far"})
		require.NoError(t, err)
		assert.Len(t, sender.Calls(), 1)

		records := logger.Records()
		require.Len(t, records, 1)
		assert.Equal(t, "warning", records[0].level)
		assert.ErrorIs(t, records[0].err, ErrInvalidParams)
		assert.Equal(t, "click", records[0].fields[eventKey])
	})

	t.Run("validator receives provided params and rules", func(t *testing.T) {
		var (
			gotEvent  string
			gotParams Params
			gotRules  Rules
		)
		r := New[string](Config[string]{
			Rules:  testRules,
			Common: Params{"app": "shop"},
			Sender: &recordingSender{},
			Validator: ValidatorFunc(func(event string, params Params, rules Rules) error {
				gotEvent, gotParams, gotRules = event, params, rules
				return nil
			}),
		})

		_, err := r.Send(context.Background(), "login", Params{"user_id": 1, "remember": true})
		require.NoError(t, err)
		assert.Equal(t, "login", gotEvent)
		assert.Equal(t, Params{"user_id": 1, "remember": true}, gotParams)
		assert.Equal(t, testRules, gotRules)
	})

	t.Run("one sender call per send", func(t *testing.T) {
		sender := &recordingSender{}
		r := New[string](Config[string]{Rules: testRules, Sender: sender, Validator: NopValidator{}})

		for i := 0; i < 5; i++ {
			_, err := r.Send(context.Background(), "click", Params{"button": "b", "x": i})
			require.NoError(t, err)
		}
		calls := sender.Calls()
		require.Len(t, calls, 5)
		for i, call := range calls {
			assert.Equal(t, Params{"button": "b", "x": i}, call.params)
		}
	})
}

func TestReporterUpdateCommon(t *testing.T) {
	sender := &recordingSender{}
	r := New[string](Config[string]{Rules: testRules, Sender: sender})

	r.UpdateCommon(Params{"a": 1})
	r.UpdateCommon(Params{"b": 2})
	assert.Equal(t, Params{"a": 1, "b": 2}, r.Common())

	r.UpdateCommon(Params{"a": 3})
	assert.Equal(t, Params{"a": 3, "b": 2}, r.Common())

	r.UpdateCommon(nil)
	assert.Equal(t, Params{"a": 3, "b": 2}, r.Common())

	_, err := r.Send(context.Background(), "click", Params{"button": "ok"})
	require.NoError(t, err)
	assert.Equal(t, Params{"a": 3, "b": 2, "button": "ok"}, sender.Calls()[0].params)

	snapshot := r.Common()
	snapshot["a"] = 100
	assert.Equal(t, 3, r.Common()["a"])
}

func TestReporterCopiesConfig(t *testing.T) {
	sender := &recordingSender{}
	rules := MustParseRules(map[string]map[string]interface{}{
		"click": {"button": []interface{}{"ok", "cancel"}},
	})
	config := Config[string]{
		Rules:          rules,
		Common:         Params{"app": "shop"},
		Sender:         sender,
		ValidationMode: ValidationStrict,
	}
	r := New[string](config)

	config.Common["app"] = "changed"
	config.Common["extra"] = true
	rules["click"]["button"].Enum[0] = "changed"
	delete(rules, "click")

	_, err := r.Send(context.Background(), "click", Params{"button": "ok"})
	require.NoError(t, err)
	assert.Equal(t, Params{"app": "shop", "button": "ok"}, sender.Calls()[0].params)

	returned := r.Rules()
	returned["click"]["button"] = Rule{Kinds: KindNumber}
	_, err = r.Send(context.Background(), "click", Params{"button": "cancel"})
	assert.NoError(t, err)
}

func TestReportersFromSameConfig(t *testing.T) {
	first, second := &recordingSender{}, &recordingSender{}
	config := Config[string]{
		Rules:  testRules,
		Common: Params{"app": "shop"},
	}

	config.Sender = first
	r1 := New[string](config)
	config.Sender = second
	r2 := New[string](config)

	params := Params{"button": "ok", "x": 1}
	_, err := r1.Send(context.Background(), "click", params)
	require.NoError(t, err)
	_, err = r2.Send(context.Background(), "click", params)
	require.NoError(t, err)

	assert.Equal(t, first.Calls(), second.Calls())
}

func TestReporterConcurrentUpdates(t *testing.T) {
	sender := &recordingSender{}
	r := New[string](Config[string]{Rules: testRules, Sender: sender, Validator: NopValidator{}})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.UpdateCommon(Params{"i": i})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = r.Send(context.Background(), "click", Params{"button": "ok"})
		}()
	}
	wg.Wait()

	assert.Len(t, sender.Calls(), 10)
	assert.Contains(t, r.Common(), "i")
}

func TestNewRequiresSender(t *testing.T) {
	assert.Panics(t, func() {
		New[string](Config[string]{Rules: testRules})
	})
}

func TestReporterWait(t *testing.T) {
	t.Run("waits for reports in flight", func(t *testing.T) {
		release := make(chan struct{})
		sender := &recordingSender{onSend: func() { <-release }}
		r := New[string](Config[string]{Rules: testRules, Sender: sender})

		r.sendDetached(context.Background(), "click", Params{"button": "ok"})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

		close(release)
		waitDetached(t, r)
		assert.Len(t, sender.Calls(), 1)
	})

	t.Run("idle reporter", func(t *testing.T) {
		r := New[string](Config[string]{Rules: testRules, Sender: &recordingSender{}})
		waitDetached(t, r)
	})

	t.Run("wait while reports are started", func(t *testing.T) {
		sender := &recordingSender{}
		r := New[string](Config[string]{Rules: testRules, Sender: sender})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					r.sendDetached(context.Background(), "click", Params{"button": "ok"})
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					ctx, cancel := context.WithTimeout(context.Background(), time.Second)
					assert.NoError(t, r.Wait(ctx))
					cancel()
				}
			}()
		}
		wg.Wait()

		waitDetached(t, r)
		assert.Len(t, sender.Calls(), 200)
	})
}
