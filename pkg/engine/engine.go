// Package engine is the public orchestration API: it submits workflow
// executions, schedules steps over the dependency graph within the active
// security profile's ceilings, and exposes status, cancellation, resume,
// and dry-run planning.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NSvoltage/secureflow/internal/audit"
	"github.com/NSvoltage/secureflow/internal/cache"
	"github.com/NSvoltage/secureflow/internal/executor"
	"github.com/NSvoltage/secureflow/internal/metrics"
	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/internal/resource"
	"github.com/NSvoltage/secureflow/internal/security"
	"github.com/NSvoltage/secureflow/internal/state"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// Version participates in cache-key derivation; bump it to invalidate
// cached step results across releases.
const Version = "1.0.0"

// Engine orchestrates workflow executions.
type Engine struct {
	store         state.Store
	cache         *cache.Cache
	registry      *executor.Registry
	sink          audit.Sink
	metrics       *metrics.Recorder
	bridge        executor.AgentBridge
	workspaceRoot string
	holderID      string
	leaseTTL      time.Duration
	admissionMode resource.AcquireMode

	mu      sync.Mutex
	running map[string]*execHandle
}

// execHandle tracks one in-flight execution.
type execHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the execution state store.
func WithStore(s state.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithCache sets the step result cache; nil disables caching.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRegistry sets the executor registry.
func WithRegistry(r *executor.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithAuditSink sets the audit sink.
func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithBridge sets the delegated-step agent bridge.
func WithBridge(b executor.AgentBridge) Option {
	return func(e *Engine) { e.bridge = b }
}

// WithWorkspaceRoot sets the filesystem confinement root.
func WithWorkspaceRoot(root string) Option {
	return func(e *Engine) { e.workspaceRoot = root }
}

// WithHolderID sets the lease holder identity of this engine instance.
func WithHolderID(id string) Option {
	return func(e *Engine) { e.holderID = id }
}

// WithLeaseTTL sets the resume lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.leaseTTL = ttl }
}

// WithAdmissionMode selects blocking or rejecting behavior at the
// concurrency ceiling.
func WithAdmissionMode(mode resource.AcquireMode) Option {
	return func(e *Engine) { e.admissionMode = mode }
}

// New creates an Engine. Unset options fall back to in-memory components
// and the default executor registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		holderID:      "secureflow",
		leaseTTL:      2 * time.Minute,
		admissionMode: resource.ModeBlock,
		running:       make(map[string]*execHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = state.NewMemoryStore()
	}
	if e.registry == nil {
		e.registry = executor.NewDefaultRegistry()
	}
	if e.sink == nil {
		e.sink = audit.NopSink{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRecorder()
	}
	return e
}

// Run executes a workflow synchronously and returns the final state.
func (e *Engine) Run(ctx context.Context, workflow *types.Workflow, inputs map[string]any, secCtx types.SecurityContext) (*types.ExecutionState, error) {
	run, err := e.prepare(workflow, inputs, secCtx)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, run)
}

// Submit starts a workflow execution asynchronously and returns its id.
// The returned id can be polled with Status and stopped with Cancel.
func (e *Engine) Submit(ctx context.Context, workflow *types.Workflow, inputs map[string]any, secCtx types.SecurityContext) (string, error) {
	run, err := e.prepare(workflow, inputs, secCtx)
	if err != nil {
		return "", err
	}
	// The pending snapshot must be visible to Status before the first
	// step runs.
	if err := e.persist(ctx, run.state); err != nil {
		return "", err
	}

	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &execHandle{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	e.running[run.state.ID] = handle
	e.mu.Unlock()

	go func() {
		defer close(handle.done)
		defer cancel()
		defer func() {
			e.mu.Lock()
			delete(e.running, run.state.ID)
			e.mu.Unlock()
		}()
		if _, err := e.execute(execCtx, run); err != nil {
			// Terminal failure is already persisted; nothing to return to.
			_ = err
		}
	}()
	return run.state.ID, nil
}

// Status returns the latest persisted state for an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*types.ExecutionState, error) {
	return e.store.Load(ctx, executionID)
}

// List returns the latest state of every known execution.
func (e *Engine) List(ctx context.Context) ([]*types.ExecutionState, error) {
	return e.store.List(ctx)
}

// Cancel stops an in-flight execution. Completed steps keep their outputs;
// the execution lands in the paused state and can be resumed later.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	handle, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		st, err := e.store.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if st.Status.Terminal() {
			return fmt.Errorf("execution %s already %s", executionID, st.Status)
		}
		return fmt.Errorf("execution %s is not running on this instance", executionID)
	}

	handle.cancel()
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume continues a paused execution. Steps already in a satisfying state
// are replayed from their persisted records without re-invocation; the
// remainder run normally. Requires the execution lease.
func (e *Engine) Resume(ctx context.Context, workflow *types.Workflow, executionID string, secCtx types.SecurityContext) (*types.ExecutionState, error) {
	persisted, err := e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if persisted.Status.Terminal() {
		return nil, fmt.Errorf("execution %s already %s", executionID, persisted.Status)
	}
	if persisted.WorkflowName != workflow.Name || persisted.WorkflowVersion != workflow.Version {
		return nil, fmt.Errorf("execution %s belongs to workflow %s/%s", executionID, persisted.WorkflowName, persisted.WorkflowVersion)
	}

	run, err := e.prepareResume(workflow, persisted, secCtx)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, run)
}

// Close waits for in-flight executions to settle and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	handles := make([]*execHandle, 0, len(e.running))
	for _, h := range e.running {
		h.cancel()
		handles = append(handles, h)
	}
	e.mu.Unlock()
	for _, h := range handles {
		<-h.done
	}
	return e.store.Close()
}

// Stats is an introspection snapshot of the engine.
type Stats struct {
	ActiveExecutions int              `json:"active_executions"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	Metrics          metrics.Snapshot `json:"metrics"`
}

// Stats returns a point-in-time snapshot.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := len(e.running)
	e.mu.Unlock()

	s := Stats{ActiveExecutions: active, Metrics: e.metrics.Snapshot()}
	if e.cache != nil {
		s.CacheHits, s.CacheMisses = e.cache.Stats()
	}
	return s
}

// newExecutionID returns a fresh unique execution id.
func newExecutionID() string {
	return "exec-" + uuid.NewString()
}

// newValidator builds the per-execution security validator.
func (e *Engine) newValidator(secCtx types.SecurityContext) *security.Validator {
	return security.NewValidator(secCtx, e.workspaceRoot, e.sink)
}

// validateAndBind parses structural validity and binds supplied inputs
// against the workflow's input declarations.
func validateAndBind(workflow *types.Workflow, supplied map[string]any) (map[string]any, error) {
	if errs := parser.Validate(workflow); errs.HasErrors() {
		return nil, errs
	}
	bound, errs := parser.BindInputs(workflow, supplied)
	if errs.HasErrors() {
		return nil, errs
	}
	return bound, nil
}
