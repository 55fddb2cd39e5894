package core

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Handler returned an error after all retries
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its string form.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Expected/actual mismatch, status code mismatch
	ErrCategoryResolution                      // Selector, element or extraction path could not be resolved
	ErrCategoryTimeout                         // Operation timed out
	ErrCategoryConnection                      // Device/server connection lost
	ErrCategoryConfig                          // Invalid step configuration, malformed numbers
	ErrCategoryComponent                       // Custom component missing or recursing too deep
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryResolution:
		return "resolution"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryComponent:
		return "component"
	default:
		return "unknown"
	}
}
