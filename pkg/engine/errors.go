package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassNotAuthenticated indicates no session exists yet; the caller must log in.
	ErrorClassNotAuthenticated ErrorClass = "not_authenticated"

	// ErrorClassAuthError indicates the server rejected credentials or the session expired.
	ErrorClassAuthError ErrorClass = "auth_error"

	// ErrorClassNetworkError indicates a transport-level failure. Retryable.
	ErrorClassNetworkError ErrorClass = "network_error"

	// ErrorClassRpcError indicates the server returned a JSON-RPC error envelope
	// (e.g. an Odoo traceback, access rights violation, or constraint failure).
	ErrorClassRpcError ErrorClass = "rpc_error"

	// ErrorClassValidationError indicates a plan, diff, or desired-state document
	// is structurally invalid (cyclic dependencies, unknown model, bad field type).
	ErrorClassValidationError ErrorClass = "validation_error"

	// ErrorClassInvalidInput indicates caller-supplied arguments are malformed.
	ErrorClassInvalidInput ErrorClass = "invalid_input"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the model or "model:id" identifier that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information (e.g. the raw
	// JSON-RPC error payload, or the Odoo traceback).
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewNotAuthenticatedError creates an error for RPC calls made before login.
func NewNotAuthenticatedError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassNotAuthenticated, Message: message, Err: err}
}

// NewAuthError creates an error for rejected credentials or expired sessions.
func NewAuthError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassAuthError, Message: message, Err: err}
}

// NewNetworkError creates a transport-level error. Network errors are retryable.
func NewNetworkError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassNetworkError, Message: message, Err: err}
}

// NewRpcError creates an error from a JSON-RPC error envelope returned by the server.
func NewRpcError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRpcError, Message: message, Err: err}
}

// NewValidationError creates an error for structurally invalid plans or state.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidationError, Message: message, Err: err}
}

// NewInvalidInputError creates an error for malformed caller-supplied arguments.
func NewInvalidInputError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInvalidInput, Message: message, Err: err}
}

// WithResource adds resource context ("model" or "model:id") to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsNotAuthenticated returns true if the error means no session exists yet.
func IsNotAuthenticated(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotAuthenticated
	}
	return false
}

// IsAuthError returns true if the error means credentials were rejected or expired.
func IsAuthError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassAuthError
	}
	return false
}

// IsNetworkError returns true if the error is a transport-level failure.
func IsNetworkError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassNetworkError
	}
	return false
}

// IsRpcError returns true if the server returned a JSON-RPC error envelope.
func IsRpcError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassRpcError
	}
	return false
}

// IsValidationError returns true if a plan or desired-state document was rejected.
func IsValidationError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidationError
	}
	return false
}

// IsInvalidInput returns true if caller-supplied arguments were malformed.
func IsInvalidInput(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInvalidInput
	}
	return false
}

// IsRetryable returns true if the operation that produced this error can be
// retried unchanged. Only network errors qualify; auth errors require a
// fresh login and RPC/validation errors require a different request.
func IsRetryable(err error) bool {
	return IsNetworkError(err)
}

// Common error codes.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAlreadyExists  = "ALREADY_EXISTS"
	ErrCodeAccessDenied   = "ACCESS_DENIED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeSessionExpired = "SESSION_EXPIRED"
	ErrCodeCycle          = "CYCLE_DETECTED"
	ErrCodeUnknownModel   = "UNKNOWN_MODEL"
	ErrCodeUnknownField   = "UNKNOWN_FIELD"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
