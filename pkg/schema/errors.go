package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExpression = "EXPRESSION_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeTimeout    = "TIMEOUT_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeAction     = "ACTION_ERROR"
	ErrCodeStore      = "STORE_ERROR"
)

// GobbyError is the structured error type for all gobby operations.
type GobbyError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Workflow string         `json:"workflow,omitempty"`
	Step     string         `json:"step,omitempty"`
	Cause    error          `json:"-"`
}

func (e *GobbyError) Error() string {
	switch {
	case e.Workflow != "" && e.Step != "":
		return fmt.Sprintf("[%s] workflow %s step %s: %s", e.Code, e.Workflow, e.Step, e.Message)
	case e.Workflow != "":
		return fmt.Sprintf("[%s] workflow %s: %s", e.Code, e.Workflow, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *GobbyError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GobbyError.
func NewError(code, message string) *GobbyError {
	return &GobbyError{Code: code, Message: message}
}

// NewErrorf creates a new GobbyError with a formatted message.
func NewErrorf(code, format string, args ...any) *GobbyError {
	return &GobbyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from an error chain, or "" when the
// chain holds no GobbyError.
func CodeOf(err error) string {
	var ge *GobbyError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// WithWorkflow attaches a workflow name to the error.
func (e *GobbyError) WithWorkflow(name string) *GobbyError {
	e.Workflow = name
	return e
}

// WithStep attaches a step name to the error.
func (e *GobbyError) WithStep(step string) *GobbyError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *GobbyError) WithCause(err error) *GobbyError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GobbyError) WithDetails(details map[string]any) *GobbyError {
	e.Details = details
	return e
}
