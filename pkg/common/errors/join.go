package errors

import (
	"errors"
	"fmt"
)

// Join skips nil errors and returns nil when nothing is left.
func Join(errs ...error) error {
	var errSlice []error
	for _, err := range errs {
		if err != nil {
			errSlice = append(errSlice, err)
		}
	}
	if len(errSlice) == 1 {
		return errSlice[0]
	}
	return errors.Join(errSlice...)
}

// Recovered converts a value returned by recover into an error.
// Errors are wrapped so errors.Is and errors.As still reach them.
func Recovered(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
