package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services.  Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrConflict              = errors.New("conflict")
	ErrArtifactGeneration    = errors.New("artifact generation failed")
	ErrStorage               = errors.New("storage failure")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// storage wraps an unexpected store error.  The cause stays reachable with
// errors.Is/As but is never shown to clients.
func storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
