package types

// AgentRequest is the payload handed to the external assistant for a
// delegated step. The engine supplies the interpolated prompt, a read-only
// context document, and the active security context; it does not interpret
// the assistant's behavior beyond the returned result.
type AgentRequest struct {
	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	Principal   string         `json:"principal"`
	Profile     string         `json:"profile"`
}

// AgentResult is the opaque result payload returned by the assistant.
type AgentResult struct {
	Success   bool           `json:"success"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
	Diff      string         `json:"diff,omitempty"`
	Error     string         `json:"error,omitempty"`
	// Token and cost accounting as reported by the assistant.
	TokensUsed int     `json:"tokens_used,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}
