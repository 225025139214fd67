package expression

import "fmt"

// ParseError represents a parsing error.
type ParseError struct {
	Position int
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: expected %s, got %s", e.Position, e.Expected, e.Got)
}

// NewParseError creates a new ParseError.
func NewParseError(pos int, expected, got string) *ParseError {
	return &ParseError{Position: pos, Expected: expected, Got: got}
}

// EvaluationError represents an error during expression evaluation.
type EvaluationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("evaluation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates a new EvaluationError.
func NewEvaluationError(message string, cause error) *EvaluationError {
	return &EvaluationError{Message: message, Cause: cause}
}

// TypeMismatchError represents a type mismatch during evaluation.
type TypeMismatchError struct {
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// NewTypeMismatchError creates a new TypeMismatchError.
func NewTypeMismatchError(expected, got string) *TypeMismatchError {
	return &TypeMismatchError{Expected: expected, Got: got}
}

// ReferenceError reports a path that does not resolve inside the fixed
// namespace, or names a symbol outside it.
type ReferenceError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s", e.Path, e.Message)
}

// NewReferenceError creates a new ReferenceError.
func NewReferenceError(path, message string) *ReferenceError {
	return &ReferenceError{Path: path, Message: message}
}
