package models

import (
	"errors"
	"fmt"
)

// Error classes shared by every component. Callers match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrValidation     = errors.New("validation failed")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field string
	Msg   string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError carries a human-readable reason and, where one exists,
// the id of the entity that blocked the operation.
type ConflictError struct {
	Reason     string
	BlockingID string
}

func (e *ConflictError) Error() string {
	if e.BlockingID != "" {
		return fmt.Sprintf("%s (blocked by %s)", e.Reason, e.BlockingID)
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Infrastructure wraps err so that it matches ErrInfrastructure while
// keeping the underlying cause reachable.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrInfrastructure, err))
}

// IsClientError reports whether err is a validation, not-found or
// conflict error, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
