package core

import (
	"errors"
	"fmt"
)

// The four error classes every operation resolves to. Callers branch with
// errors.Is; the HTTP layer maps them to status codes.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("storage failure")
)

// Validationf wraps ErrValidation with a descriptive message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound. Ownership misses use the same message as
// genuine misses so another user's data never leaks through error text.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storef wraps an underlying persistence error with ErrStore. The cause is
// kept in the message only; the class is what callers dispatch on.
func Storef(err error, op string) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
