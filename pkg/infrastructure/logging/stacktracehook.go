package logging

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const stackKey = "stack"

func NewStackTraceHook() logrus.Hook {
	return &stackTraceHook{}
}

type stackTraceHook struct{}

func (hook stackTraceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook stackTraceHook) Fire(entry *logrus.Entry) error {
	val, ok := entry.Data[logrus.ErrorKey]
	if !ok {
		return nil
	}

	if val == nil {
		delete(entry.Data, logrus.ErrorKey)
		return nil
	}

	err, ok := val.(error)
	if !ok {
		return nil
	}

	if t := deepestStackTracer(err); t != nil {
		frames := make([]string, 0, len(t.StackTrace()))
		for _, frame := range t.StackTrace() {
			frames = append(frames, fmt.Sprintf("%+v", frame))
		}
		entry.Data[stackKey] = strings.Join(frames, "\n")
	}
	entry.Data[logrus.ErrorKey] = err.Error()

	return nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// deepestStackTracer returns the innermost error with a stack, it points
// closest to where the failure happened.
func deepestStackTracer(err error) stackTracer {
	var result stackTracer
	for err != nil {
		if t, ok := err.(stackTracer); ok {
			result = t
		}
		err = stderrors.Unwrap(err)
	}
	return result
}
