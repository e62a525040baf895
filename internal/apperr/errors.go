// Package apperr defines the error kinds the reminder pipeline reports.
// Validation errors stay inside the controller, scheduling errors are soft
// warnings, store errors and not-found reach the surface layer.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound marks operations on a reminder id that no longer exists.
// Callers treat it as "already deleted" and resync from the next snapshot.
var ErrNotFound = errors.New("reminder not found")

// ErrBusy is returned when a save or remove is rejected because another one
// is still in flight.
var ErrBusy = errors.New("operation already in progress")

// Validation field names used across the controller and the bot surface.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDate        = "date"
)

// ValidationError reports a rejected user input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a validation failure and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// SchedulingError wraps a notification scheduling failure. The reminder is
// saved regardless; the caller surfaces this as a warning, not a failure.
type SchedulingError struct {
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule notification: %v", e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// StoreError wraps a document store read, write or subscription failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err into a StoreError unless it already carries a kind.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
