package types

import "time"

// AuditCategory classifies audit events.
type AuditCategory string

const (
	// AuditCategorySecurity covers validator decisions and permission checks.
	AuditCategorySecurity AuditCategory = "security"
	// AuditCategoryExecution covers per-step status transitions.
	AuditCategoryExecution AuditCategory = "execution"
	// AuditCategoryLifecycle covers workflow-level status transitions.
	AuditCategoryLifecycle AuditCategory = "lifecycle"
)

// AuditOutcome records the decision or transition result of an event.
type AuditOutcome string

const (
	AuditOutcomeAllowed   AuditOutcome = "allowed"
	AuditOutcomeRejected  AuditOutcome = "rejected"
	AuditOutcomeStarted   AuditOutcome = "started"
	AuditOutcomeSucceeded AuditOutcome = "succeeded"
	AuditOutcomeFailed    AuditOutcome = "failed"
	AuditOutcomeSkipped   AuditOutcome = "skipped"
	AuditOutcomeCached    AuditOutcome = "cached"
)

// AuditEvent is one immutable entry in the append-only audit trail. The
// engine only ever writes events; it never reads them back for control flow.
type AuditEvent struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	ExecutionID string        `json:"execution_id"`
	StepID      string        `json:"step_id,omitempty"`
	Principal   string        `json:"principal,omitempty"`
	Category    AuditCategory `json:"category"`
	Outcome     AuditOutcome  `json:"outcome"`
	Detail      string        `json:"detail"`
}
