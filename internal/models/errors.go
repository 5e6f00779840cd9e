package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrItemNotFound        = fmt.Errorf("bought item %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrDiscountNotFound    = fmt.Errorf("discount %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrOptionNotFound      = fmt.Errorf("catalog option %w", ErrNotFound)
)

// ValidationError rejects a request before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ProcessorError wraps a failure reported by a payment processor.
type ProcessorError struct {
	Processor string
	Op        string
	Err       error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Processor, e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

func IsProcessor(err error) bool {
	var p *ProcessorError
	return errors.As(err, &p)
}
