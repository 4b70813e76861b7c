// Copyright 2024-2026 Aiku AI

package conn

import (
	"errors"
	"fmt"
)

var (
	ErrSinkClosed       = errors.New("event sink closed")
	ErrMissingField     = errors.New("missing required field in backend response")
	ErrNoMatchingServer = errors.New("no accessible server matches the configured name")
	ErrUnknownChannel   = errors.New("unknown channel")
)

// SetupError is returned when an adapter cannot be constructed. The adapter
// is never partially created.
type SetupError struct {
	Backend string
	Step    string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed at %s: %v", e.Backend, e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// NewSetupError wraps err with the backend and the step that failed.
func NewSetupError(backend, step string, err error) *SetupError {
	return &SetupError{Backend: backend, Step: step, Err: err}
}
