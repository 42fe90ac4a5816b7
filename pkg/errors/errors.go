// Package errors defines the categorized error type shared across the
// reconciliation engine.
//
// The matching core distinguishes three caller-visible failure classes:
// validation errors (malformed tolerances, inverted date ranges, bad
// year/month), state errors (illegal match lifecycle transitions), and
// storage errors (repository failures, surfaced unchanged). A missing
// transaction, recurring transaction, or match is NOT an error: repositories
// signal absence with a nil result so batch operations stay partially
// successful.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory groups error codes by the subsystem that produced them.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryState      ErrorCategory = "state"
	CategoryStorage    ErrorCategory = "storage"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category.
type ErrorCode string

const (
	// Validation errors
	CodeInvalidTolerance ErrorCode = "invalid_tolerance"
	CodeInvalidRange     ErrorCode = "invalid_range"
	CodeInvalidPeriod    ErrorCode = "invalid_period"
	CodeMissingField     ErrorCode = "missing_field"
	CodeNotFound         ErrorCode = "not_found"

	// State errors
	CodeInvalidTransition ErrorCode = "invalid_transition"

	// Storage errors
	CodeQueryFailed         ErrorCode = "query_failed"
	CodeConstraintViolation ErrorCode = "constraint_violation"
	CodeMigrationFailed     ErrorCode = "migration_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all engine errors.
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries structured information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair to the error context.
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a hint for resolving the error.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// GetExitCode returns the process exit code for this error category.
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 2
	case CategoryState:
		return 3
	case CategoryStorage:
		return 4
	case CategoryInternal:
		return 5
	default:
		return 1
	}
}

// New creates a new ReconcilerError with a captured stack trace.
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with category and code context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ValidationError creates a validation error for a named field or parameter.
// Validation errors are surfaced to the caller immediately and never retried.
func ValidationError(code ErrorCode, field string, value interface{}) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidTolerance:
		message = fmt.Sprintf("invalid tolerance '%s': %v", field, value)
		suggestion = "date tolerance must be >= 0, amount tolerances >= 0, thresholds within [0,1]"
	case CodeInvalidRange:
		message = fmt.Sprintf("invalid date range: %v", value)
		suggestion = "the range start must not be after the range end"
	case CodeInvalidPeriod:
		message = fmt.Sprintf("invalid period '%s': %v", field, value)
		suggestion = "use a four-digit year and a month between 1 and 12"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("validation error for '%s': %v", field, value)
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// NotFoundError creates an error for a reference to an entity that does not
// exist.
func NotFoundError(kind, id string) *ReconcilerError {
	return New(CategoryValidation, CodeNotFound, fmt.Sprintf("%s '%s' not found", kind, id)).
		WithContext("kind", kind).
		WithContext("id", id)
}

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Code == CodeNotFound
}

// StateTransitionError creates an error for an illegal match lifecycle
// transition, recording the current status and attempted operation.
func StateTransitionError(currentStatus, operation string) *ReconcilerError {
	return New(
		CategoryState,
		CodeInvalidTransition,
		fmt.Sprintf("cannot %s a match in status %s", operation, currentStatus),
	).
		WithSuggestion("only Suggested or AutoMatched matches can be accepted or rejected").
		WithContext("status", currentStatus).
		WithContext("operation", operation)
}

// StorageError wraps a persistence-layer failure for the given operation.
func StorageError(code ErrorCode, operation string, err error) *ReconcilerError {
	return Wrap(err, CategoryStorage, code, fmt.Sprintf("storage failure during %s", operation)).
		WithContext("operation", operation)
}

// IsReconcilerError checks whether err is a ReconcilerError.
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var re *ReconcilerError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsValidation reports whether err is a validation-category error.
func IsValidation(err error) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Category == CategoryValidation
}

// IsInvalidStateTransition reports whether err is an illegal lifecycle
// transition error.
func IsInvalidStateTransition(err error) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Code == CodeInvalidTransition
}

// WrapIfNeeded wraps err unless it already is a ReconcilerError.
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if re, ok := AsReconcilerError(err); ok {
		return re
	}

	return Wrap(err, category, code, message)
}
