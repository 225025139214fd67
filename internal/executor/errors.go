package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/NSvoltage/secureflow/internal/resource"
	"github.com/NSvoltage/secureflow/internal/security"
)

// ErrorCode classifies executor errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates no executor is registered for a step kind.
	ErrCodeNotFound ErrorCode = "EXECUTOR_NOT_FOUND"
	// ErrCodeExecution indicates the underlying action failed for
	// operational reasons. Retryable per the step's policy.
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	// ErrCodeTimeout indicates the step exceeded its wall-clock limit.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"
	// ErrCodeAssertion indicates an assert step's condition was false.
	ErrCodeAssertion ErrorCode = "ASSERTION_FAILED"
)

// ExecutionError represents a step execution failure.
type ExecutionError struct {
	Code    ErrorCode
	StepID  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] step %s: %s: %v", e.Code, e.StepID, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an operational execution failure.
func NewExecutionError(stepID, message string, cause error) *ExecutionError {
	return &ExecutionError{Code: ErrCodeExecution, StepID: stepID, Message: message, Cause: cause}
}

// NewTimeoutError creates a wall-clock limit failure.
func NewTimeoutError(stepID string, limit time.Duration) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeTimeout,
		StepID:  stepID,
		Message: fmt.Sprintf("execution exceeded the %v limit", limit),
	}
}

// NewAssertionError creates an assertion failure.
func NewAssertionError(stepID, message string) *ExecutionError {
	return &ExecutionError{Code: ErrCodeAssertion, StepID: stepID, Message: message}
}

// NewNotFoundError creates an error for an unregistered step kind.
func NewNotFoundError(kind string) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeNotFound,
		Message: "no executor registered for kind: " + kind,
	}
}

// IsRetryable reports whether a failure may be retried under the step's
// retry policy. Security violations, resource exhaustion, timeouts, and
// assertion failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if security.IsViolation(err) || resource.IsExhaustion(err) {
		return false
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code == ErrCodeExecution
	}
	return false
}
