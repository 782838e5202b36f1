package batch

import (
	"errors"
	"fmt"
)

// Common errors returned by the controller.
var (
	// ErrAlreadyRunning is returned by Start while a task is running or stopping.
	ErrAlreadyRunning = errors.New("a task is already running")

	// ErrInvalidPolicy is returned for policy values outside their bounds.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// PartialError marks an item that completed part of its work. Processors
// return it (usually wrapped) to report partial success: the item counts as
// succeeded, the annotation is logged as a warning, and no retry happens.
type PartialError struct {
	Err error
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	return fmt.Sprintf("partially completed: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialError) Unwrap() error {
	return e.Err
}
