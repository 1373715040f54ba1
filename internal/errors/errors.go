package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrConflict     ErrorType = "CONFLICT"
	ErrInvalidInput ErrorType = "INVALID_INPUT"
	ErrInternal     ErrorType = "INTERNAL"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// IsNotFound checks if the error, anywhere in its chain, is a not
// found error. Callers routinely wrap store errors with %w, so the
// predicates must unwrap.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrNotFound
	}
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrConflict
	}
	return false
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrInvalidInput
	}
	return false
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return New(ErrNotFound, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// RunInProgressError is returned when an integration already has a
// non-terminal import run and a new one is requested.
type RunInProgressError struct {
	IntegrationID string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("import already in progress for integration: %s", e.IntegrationID)
}

// NewRunInProgressError creates a new RunInProgressError
func NewRunInProgressError(integrationID string) error {
	return &RunInProgressError{IntegrationID: integrationID}
}

// IsRunInProgress checks if the error is a RunInProgressError
func IsRunInProgress(err error) bool {
	var target *RunInProgressError
	return errors.As(err, &target)
}

// RunNotClaimableError is returned when a run cannot be moved to
// RUNNING because it is already terminal or claimed by another worker.
type RunNotClaimableError struct {
	RunID  string
	Status string
}

func (e *RunNotClaimableError) Error() string {
	return fmt.Sprintf("run %s cannot be claimed in status %s", e.RunID, e.Status)
}

// NewRunNotClaimableError creates a new RunNotClaimableError
func NewRunNotClaimableError(runID, status string) error {
	return &RunNotClaimableError{RunID: runID, Status: status}
}

// IsRunNotClaimable checks if the error is a RunNotClaimableError
func IsRunNotClaimable(err error) bool {
	var target *RunNotClaimableError
	return errors.As(err, &target)
}

// NotFoundError represents a not found error for a specific resource
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewResourceNotFoundError creates a new NotFoundError for a specific resource
func NewResourceNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
