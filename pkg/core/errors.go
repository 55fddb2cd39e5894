package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so copies made with the With* helpers
// still satisfy errors.Is against the predefined templates.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Assertion errors
	ErrAssertionFailed = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_failed",
		Message:  "assertion failed",
	}
	ErrStatusMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "status_mismatch",
		Message:  "unexpected HTTP status code",
	}

	// Resolution errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrSelectorUnresolved = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     "selector_unresolved",
		Message:  "selector could not be resolved",
	}
	ErrExtractFailed = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     "extract_failed",
		Message:  "value extraction failed",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Connection errors
	ErrDeviceDisconnected = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "device_disconnected",
		Message:  "device connection lost",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
	ErrInvalidNumber = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_number",
		Message:  "value is not a number",
	}

	// Component errors
	ErrComponentNotFound = &ExecutionError{
		Category: ErrCategoryComponent,
		Code:     "component_not_found",
		Message:  "custom component not found",
	}
	ErrComponentDepth = &ExecutionError{
		Category: ErrCategoryComponent,
		Code:     "component_depth_exceeded",
		Message:  "custom component nesting too deep",
	}
)

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return ErrCategoryNone
}

// IsAssertion reports whether err is an assertion failure.
func IsAssertion(err error) bool {
	return CategoryOf(err) == ErrCategoryAssertion
}

// Assertionf builds an assertion failure carrying an expected/actual message.
func Assertionf(format string, args ...interface{}) *ExecutionError {
	return ErrAssertionFailed.WithMessagef(format, args...)
}
