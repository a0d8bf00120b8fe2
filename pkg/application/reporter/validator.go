package reporter

import (
	"sort"

	"github.com/pkg/errors"
)

type Validator interface {
	Validate(event string, params Params, rules Rules) error
}

type ValidatorFunc func(event string, params Params, rules Rules) error

func (f ValidatorFunc) Validate(event string, params Params, rules Rules) error {
	return f(event, params, rules)
}

// ValidationMode decides what Send does with a validation error.
type ValidationMode int

const (
	// ValidationAdvisory logs the error and dispatches the event anyway.
	ValidationAdvisory ValidationMode = iota
	// ValidationStrict returns the error without calling the sender.
	ValidationStrict
)

type NopValidator struct{}

func (NopValidator) Validate(string, Params, Rules) error {
	return nil
}

// SchemaValidator checks params against the event's rules. Params that are
// not described by the rules are accepted, nil values count as absent.
type SchemaValidator struct{}

func (SchemaValidator) Validate(event string, params Params, rules Rules) error {
	eventRules, ok := rules[event]
	if !ok {
		return errors.Wrapf(ErrUnknownEvent, "%q", event)
	}

	names := make([]string, 0, len(eventRules))
	for name := range eventRules {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []Issue
	for _, name := range names {
		rule := eventRules[name]
		value, present := params[name]
		if !present || value == nil {
			if !rule.Optional {
				issues = append(issues, Issue{Param: name, Reason: "required param is missing"})
			}
			continue
		}
		if err := rule.Check(value); err != nil {
			issues = append(issues, Issue{Param: name, Reason: err.Error()})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Event: event, Issues: issues}
	}
	return nil
}
