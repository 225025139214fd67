package rest

import (
	"github.com/NSvoltage/secureflow/pkg/engine"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ExecutionSubmitRequest submits a workflow for execution. The workflow
// may be given inline or as raw YAML; exactly one is required.
type ExecutionSubmitRequest struct {
	Workflow *types.Workflow `json:"workflow,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
	Inputs   map[string]any  `json:"inputs,omitempty"`
	// Profile optionally overrides the server's default security profile.
	Profile string `json:"profile,omitempty"`
	// Wait blocks the request until the execution reaches a terminal
	// state instead of returning immediately.
	Wait bool `json:"wait,omitempty"`
}

// ExecutionSubmitResponse acknowledges a submission.
type ExecutionSubmitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ResumeRequest continues a paused execution; the workflow document must
// be supplied again since the engine does not persist definitions.
type ResumeRequest struct {
	Workflow *types.Workflow `json:"workflow,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
	Profile  string          `json:"profile,omitempty"`
}

// ValidateRequest dry-runs a workflow without executing it.
type ValidateRequest struct {
	Workflow *types.Workflow `json:"workflow,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
	Inputs   map[string]any  `json:"inputs,omitempty"`
	Profile  string          `json:"profile,omitempty"`
}

// ValidateResponse carries the dry-run plan, or the validation issues
// that prevented planning.
type ValidateResponse struct {
	Valid  bool                 `json:"valid"`
	Issues []string             `json:"issues,omitempty"`
	Report *engine.DryRunReport `json:"report,omitempty"`
}

// StatsResponse is the engine introspection snapshot.
type StatsResponse struct {
	Stats engine.Stats `json:"stats"`
}
