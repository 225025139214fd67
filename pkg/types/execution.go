package types

import "time"

// StepStatus is the per-step state machine.
type StepStatus string

const (
	// StepStatusPending indicates dependencies are not yet satisfied.
	StepStatusPending StepStatus = "pending"
	// StepStatusReady indicates all dependencies reached a terminal state.
	StepStatusReady StepStatus = "ready"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCached indicates the result was served from the step cache.
	StepStatusCached StepStatus = "cached"
	// StepStatusCompleted indicates successful execution.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step failed after exhausting retries.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates an untaken conditional branch.
	StepStatusSkipped StepStatus = "skipped"
)

// Terminal reports whether the status is a terminal non-running state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCached, StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// Satisfies reports whether a dependency in this status unblocks dependents.
func (s StepStatus) Satisfies() bool {
	return s == StepStatusCompleted || s == StepStatusCached || s == StepStatusSkipped
}

// ExecutionStatus is the workflow-level state machine.
type ExecutionStatus string

const (
	// ExecutionStatusPending indicates the execution is submitted but not started.
	ExecutionStatusPending ExecutionStatus = "pending"
	// ExecutionStatusRunning indicates the execution is in progress.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusPaused indicates the execution was interrupted and can resume.
	ExecutionStatusPaused ExecutionStatus = "paused"
	// ExecutionStatusCompleted indicates every step reached a satisfying state.
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed.
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// Terminal reports whether the execution reached a final state.
// Paused executions are resumable and therefore not terminal.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// StepRecord is the persisted per-step execution record.
type StepRecord struct {
	StepID    string         `json:"step_id"`
	Status    StepStatus     `json:"status"`
	Attempts  int            `json:"attempts"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
	CacheKey  string         `json:"cache_key,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *StepRecord) Clone() *StepRecord {
	cp := *r
	if r.Outputs != nil {
		cp.Outputs = make(map[string]any, len(r.Outputs))
		for k, v := range r.Outputs {
			cp.Outputs[k] = v
		}
	}
	return &cp
}

// ExecutionState is the persisted state of one workflow execution. It is
// mutated only by the scheduler and persisted append-style: every transition
// bumps Version and appends a new record to the state store.
type ExecutionState struct {
	ID              string                 `json:"id"`
	WorkflowName    string                 `json:"workflow_name"`
	WorkflowVersion string                 `json:"workflow_version"`
	Status          ExecutionStatus        `json:"status"`
	Inputs          map[string]any         `json:"inputs,omitempty"`
	Outputs         map[string]any         `json:"outputs,omitempty"`
	Steps           map[string]*StepRecord `json:"steps"`
	Error           string                 `json:"error,omitempty"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Clone returns a deep copy suitable for handing to callers as a snapshot.
func (s *ExecutionState) Clone() *ExecutionState {
	cp := *s
	cp.Steps = make(map[string]*StepRecord, len(s.Steps))
	for id, rec := range s.Steps {
		cp.Steps[id] = rec.Clone()
	}
	if s.Inputs != nil {
		cp.Inputs = make(map[string]any, len(s.Inputs))
		for k, v := range s.Inputs {
			cp.Inputs[k] = v
		}
	}
	if s.Outputs != nil {
		cp.Outputs = make(map[string]any, len(s.Outputs))
		for k, v := range s.Outputs {
			cp.Outputs[k] = v
		}
	}
	return &cp
}

// Lease is the exclusive, time-bounded claim required to run or resume an
// execution. It is the only exclusive lock in the system.
type Lease struct {
	ExecutionID string    `json:"execution_id"`
	Holder      string    `json:"holder"`
	Expires     time.Time `json:"expires"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.Expires)
}

// StepResult is the in-memory outcome of a single step attempt.
type StepResult struct {
	StepID    string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	// Outputs holds the declared, sanitized outputs of the step.
	Outputs map[string]any
	Error   error
	// Cached reports whether the result was served from the step cache.
	Cached   bool
	CacheKey string
}

// NewStepResult creates a StepResult in the completed state; callers fill it
// in during execution and close it with defer result.Finish().
func NewStepResult(stepID string) *StepResult {
	return &StepResult{
		StepID:    stepID,
		Status:    StepStatusCompleted,
		StartTime: time.Now(),
		Outputs:   make(map[string]any),
	}
}

// Fail marks the result as failed.
func (r *StepResult) Fail(err error) {
	r.Status = StepStatusFailed
	r.Error = err
}

// Skip marks the result as skipped.
func (r *StepResult) Skip() {
	r.Status = StepStatusSkipped
}

// Finish stamps EndTime and Duration.
func (r *StepResult) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// IsSuccess reports whether the attempt succeeded.
func (r *StepResult) IsSuccess() bool {
	return r.Status == StepStatusCompleted || r.Status == StepStatusCached
}
