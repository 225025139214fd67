package security

import (
	"errors"
	"fmt"
)

// ViolationKind names the class of rejected input.
type ViolationKind string

const (
	ViolationCommand    ViolationKind = "command"
	ViolationPath       ViolationKind = "path"
	ViolationTemplate   ViolationKind = "template"
	ViolationExpression ViolationKind = "expression"
	ViolationInput      ViolationKind = "input"
	ViolationPermission ViolationKind = "permission"
)

// SecurityViolationError is returned whenever the validator rejects an
// input. It is never retryable. The Reason is safe to surface and log; the
// rejected raw input is deliberately not carried on the error.
type SecurityViolationError struct {
	Kind   ViolationKind
	StepID string
	Reason string
}

func (e *SecurityViolationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("security violation (%s) in step %s: %s", e.Kind, e.StepID, e.Reason)
	}
	return fmt.Sprintf("security violation (%s): %s", e.Kind, e.Reason)
}

// NewViolation creates a SecurityViolationError.
func NewViolation(kind ViolationKind, stepID, reason string) *SecurityViolationError {
	return &SecurityViolationError{Kind: kind, StepID: stepID, Reason: reason}
}

// IsViolation reports whether err is a SecurityViolationError.
func IsViolation(err error) bool {
	var v *SecurityViolationError
	return errors.As(err, &v)
}
