package core

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input. It is returned before any write.
type ValidationError struct {
	Field string
	Err   error
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing or soft-deleted entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// OverpaymentError carries the exact amount still payable.
type OverpaymentError struct {
	Remaining Money
	Attempted Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining payable amount %s", e.Attempted, e.Remaining)
}

// ConflictError reports a lost serialization race or a state conflict. Callers may retry.
type ConflictError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %d: %s", e.Entity, e.ID, e.Reason)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// AsOverpayment extracts an OverpaymentError from err.
func AsOverpayment(err error) (*OverpaymentError, bool) {
	var target *OverpaymentError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
