package reporter

import (
	stderrors "errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownEvent  = stderrors.New("unknown event")
	ErrInvalidParams = stderrors.New("invalid params")
	ErrInvalidRule   = stderrors.New("invalid rule")
)

type Issue struct {
	Param  string
	Reason string
}

type ValidationError struct {
	Event  string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		reasons = append(reasons, fmt.Sprintf("%s: %s", issue.Param, issue.Reason))
	}
	return fmt.Sprintf("%s for event %q: %s", ErrInvalidParams, e.Event, strings.Join(reasons, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidParams
}
