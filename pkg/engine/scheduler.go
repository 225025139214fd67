package engine

import (
	"context"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/NSvoltage/secureflow/internal/audit"
	"github.com/NSvoltage/secureflow/internal/cache"
	"github.com/NSvoltage/secureflow/internal/executor"
	"github.com/NSvoltage/secureflow/internal/graph"
	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/internal/resource"
	"github.com/NSvoltage/secureflow/internal/security"
	"github.com/NSvoltage/secureflow/pkg/logger"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// run is the per-execution scheduling context.
type run struct {
	workflow  *types.Workflow
	graph     *graph.Graph
	state     *types.ExecutionState
	execCtx   *executor.ExecutionContext
	validator *security.Validator
	manager   *resource.Manager
}

// stepOutcome is what a finished step task reports back to the scheduler.
type stepOutcome struct {
	stepID   string
	result   *types.StepResult
	err      error
	attempts int
}

// prepare validates the workflow, binds inputs, and builds a fresh run.
func (e *Engine) prepare(workflow *types.Workflow, supplied map[string]any, secCtx types.SecurityContext) (*run, error) {
	bound, err := validateAndBind(workflow, supplied)
	if err != nil {
		return nil, err
	}
	g, err := parser.BuildGraph(workflow)
	if err != nil {
		return nil, err
	}

	// The id exists before any validation so rejection audit events are
	// attributable to the execution.
	executionID := newExecutionID()

	validator := e.newValidator(secCtx)
	for name, value := range bound {
		if s, ok := value.(string); ok {
			if err := validator.ValidateInputValue(executionID, name, s); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UTC()
	st := &types.ExecutionState{
		ID:              executionID,
		WorkflowName:    workflow.Name,
		WorkflowVersion: workflow.Version,
		Status:          types.ExecutionStatusPending,
		Inputs:          bound,
		Steps:           make(map[string]*types.StepRecord, len(workflow.Steps)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range workflow.Steps {
		st.Steps[workflow.Steps[i].ID] = &types.StepRecord{
			StepID: workflow.Steps[i].ID,
			Status: types.StepStatusPending,
		}
	}

	execCtx := executor.NewExecutionContext(st.ID, workflow, bound).
		WithValidator(validator).
		WithBridge(e.bridge)
	return &run{
		workflow:  workflow,
		graph:     g,
		state:     st,
		execCtx:   execCtx,
		validator: validator,
		manager:   resource.NewManager(validator.Profile(), e.admissionMode),
	}, nil
}

// prepareResume rebuilds a run from persisted state. Step records in a
// satisfying state are replayed verbatim; everything else is reset to
// pending and runs again.
func (e *Engine) prepareResume(workflow *types.Workflow, persisted *types.ExecutionState, secCtx types.SecurityContext) (*run, error) {
	g, err := parser.BuildGraph(workflow)
	if err != nil {
		return nil, err
	}

	st := persisted.Clone()
	validator := e.newValidator(secCtx)
	execCtx := executor.NewExecutionContext(st.ID, workflow, st.Inputs).
		WithValidator(validator).
		WithBridge(e.bridge)

	for id, rec := range st.Steps {
		if rec.Status.Satisfies() {
			replayed := types.NewStepResult(id)
			replayed.Status = rec.Status
			replayed.Outputs = rec.Outputs
			execCtx.SetResult(id, replayed)
			continue
		}
		rec.Status = types.StepStatusPending
		rec.Error = ""
	}

	return &run{
		workflow:  workflow,
		graph:     g,
		state:     st,
		execCtx:   execCtx,
		validator: validator,
		manager:   resource.NewManager(validator.Profile(), e.admissionMode),
	}, nil
}

// execute drives a run to a terminal or paused state under the execution
// lease.
func (e *Engine) execute(ctx context.Context, r *run) (*types.ExecutionState, error) {
	if _, err := e.store.AcquireLease(ctx, r.state.ID, e.holderID, e.leaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		// Release must not be blocked by a cancelled run context.
		_ = e.store.ReleaseLease(context.Background(), r.state.ID, e.holderID)
	}()

	wctx, cancel := e.workflowContext(ctx, r)
	defer cancel()

	r.state.Status = types.ExecutionStatusRunning
	if err := e.persist(wctx, r.state); err != nil {
		return nil, err
	}
	e.audit(r, "", types.AuditCategoryLifecycle, types.AuditOutcomeStarted, "execution started")

	e.schedule(wctx, r)

	return e.finalize(ctx, r)
}

// workflowContext bounds the run by the workflow timeout and the profile's
// workflow ceiling, whichever is tighter.
func (e *Engine) workflowContext(ctx context.Context, r *run) (context.Context, context.CancelFunc) {
	limit := r.validator.Profile().MaxWorkflowDuration.Std()
	if t := r.workflow.Timeout.Std(); t > 0 && (limit <= 0 || t < limit) {
		limit = t
	}
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// schedule is the dispatch loop: every step whose dependencies are
// satisfied is handed to a bounded task, and the loop selects across task
// completions until nothing is in flight and nothing can become ready.
func (e *Engine) schedule(ctx context.Context, r *run) {
	inflight := make(map[string]struct{})
	done := make(chan *stepOutcome)
	failed := false

	for {
		if !failed && ctx.Err() == nil {
			for _, id := range e.readySteps(r, inflight) {
				step := r.workflow.StepByID(id)
				rec := r.state.Steps[id]
				rec.Status = types.StepStatusRunning
				now := time.Now().UTC()
				rec.StartedAt = &now
				inflight[id] = struct{}{}
				e.audit(r, id, types.AuditCategoryExecution, types.AuditOutcomeStarted, "step started")

				go func(step *types.Step) {
					done <- e.runStep(ctx, r, step)
				}(step)
			}
		}
		if len(inflight) == 0 {
			return
		}

		outcome := <-done
		delete(inflight, outcome.stepID)
		if e.applyOutcome(ctx, r, outcome) {
			failed = true
		}
	}
}

// readySteps returns pending steps whose dependencies are all satisfied.
func (e *Engine) readySteps(r *run, inflight map[string]struct{}) []string {
	var ready []string
	for _, step := range r.workflow.Steps {
		rec := r.state.Steps[step.ID]
		if rec.Status != types.StepStatusPending {
			continue
		}
		if _, running := inflight[step.ID]; running {
			continue
		}
		ok := true
		for _, dep := range r.graph.Dependencies(step.ID) {
			if !r.state.Steps[dep].Status.Satisfies() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

// applyOutcome folds a finished step back into the run state. It returns
// true when the outcome fails the workflow.
func (e *Engine) applyOutcome(ctx context.Context, r *run, outcome *stepOutcome) bool {
	step := r.workflow.StepByID(outcome.stepID)
	rec := r.state.Steps[outcome.stepID]
	result := outcome.result

	if ctx.Err() != nil && result.Status == types.StepStatusFailed {
		// Interrupted by cancellation or the workflow deadline, not a
		// step failure; the step re-runs on resume.
		rec.Status = types.StepStatusPending
		rec.StartedAt = nil
		e.audit(r, step.ID, types.AuditCategoryExecution, types.AuditOutcomeSkipped, "step interrupted")
		if err := e.persist(context.Background(), r.state); err != nil {
			logger.Error("persisting state for %s: %v", r.state.ID, err)
		}
		return false
	}

	rec.Status = result.Status
	rec.Attempts = outcome.attempts
	rec.Outputs = result.Outputs
	rec.CacheKey = result.CacheKey
	now := time.Now().UTC()
	rec.EndedAt = &now
	if result.Error != nil {
		rec.Error = security.Redact(result.Error.Error())
	}

	r.execCtx.SetResult(outcome.stepID, result)
	e.metrics.ObserveStep(step.Kind, result.Status, result.Duration)

	switch result.Status {
	case types.StepStatusFailed:
		e.audit(r, step.ID, types.AuditCategoryExecution, types.AuditOutcomeFailed, rec.Error)
	case types.StepStatusCached:
		e.audit(r, step.ID, types.AuditCategoryExecution, types.AuditOutcomeCached, "served from cache")
	case types.StepStatusSkipped:
		e.audit(r, step.ID, types.AuditCategoryExecution, types.AuditOutcomeSkipped, "step skipped")
	default:
		e.audit(r, step.ID, types.AuditCategoryExecution, types.AuditOutcomeSucceeded, "step completed")
	}

	if step.Kind == types.StepKindConditional && result.Status.Satisfies() {
		_, skipped := executor.TakenBranch(result)
		e.skipBranch(r, skipped, "untaken branch")
	}

	if err := e.persist(context.Background(), r.state); err != nil {
		logger.Error("persisting state for %s: %v", r.state.ID, err)
	}
	return result.Status == types.StepStatusFailed
}

// skipBranch marks the named steps, and everything downstream of them,
// as skipped.
func (e *Engine) skipBranch(r *run, ids []string, detail string) {
	for _, id := range ids {
		e.skipStep(r, id, detail)
		for _, dep := range r.graph.TransitiveDependents(id) {
			e.skipStep(r, dep, detail)
		}
	}
}

func (e *Engine) skipStep(r *run, id, detail string) {
	rec, ok := r.state.Steps[id]
	if !ok || rec.Status != types.StepStatusPending {
		return
	}
	rec.Status = types.StepStatusSkipped
	skippedResult := types.NewStepResult(id)
	skippedResult.Skip()
	skippedResult.Finish()
	r.execCtx.SetResult(id, skippedResult)
	e.audit(r, id, types.AuditCategoryExecution, types.AuditOutcomeSkipped, detail)
}

// runStep executes one step under the concurrency ceiling, with retries
// for retryable operational failures.
func (e *Engine) runStep(ctx context.Context, r *run, step *types.Step) *stepOutcome {
	outcome := &stepOutcome{stepID: step.ID, attempts: 1}

	if step.Resources != nil {
		if err := r.manager.CheckMemory(step.Resources.MemoryMB); err != nil {
			outcome.result, outcome.err = failedResult(step.ID, err), err
			return outcome
		}
	}

	release, err := r.manager.Acquire(ctx)
	if err != nil {
		outcome.result, outcome.err = failedResult(step.ID, err), err
		return outcome
	}
	defer release()

	maxAttempts := 1
	if step.Retry != nil && step.Retry.MaxAttempts > 1 {
		maxAttempts = step.Retry.MaxAttempts
	}

	for attempt := 1; ; attempt++ {
		outcome.attempts = attempt
		result, err := e.attemptStep(ctx, r, step)
		outcome.result, outcome.err = result, err
		if err == nil || !e.retryAllowed(step, err) || attempt >= maxAttempts {
			return outcome
		}

		e.metrics.ObserveRetry()
		logger.Warn("step %s attempt %d failed, retrying: %v", step.ID, attempt, err)
		if !sleepBackoff(ctx, step.Retry, attempt) {
			return outcome
		}
	}
}

// retryAllowed applies the retry policy: only operational execution errors
// retry, and delegated steps only when explicitly marked idempotent.
func (e *Engine) retryAllowed(step *types.Step, err error) bool {
	if !executor.IsRetryable(err) {
		return false
	}
	if step.Kind == types.StepKindDelegated && !step.Idempotent {
		return false
	}
	return true
}

// attemptStep performs a single validate/execute pass for a step,
// consulting the cache where the step is cacheable.
func (e *Engine) attemptStep(ctx context.Context, r *run, step *types.Step) (*types.StepResult, error) {
	stepCtx, cancel := r.manager.StepContext(ctx, stepTimeout(step))
	defer cancel()

	exec, err := e.registry.Get(step.Kind)
	if err != nil {
		return failedResult(step.ID, err), err
	}

	resolved, err := executor.Resolve(step, r.execCtx.Namespace())
	if err != nil {
		return failedResult(step.ID, err), err
	}

	if err := exec.ValidateInputs(step, resolved, r.execCtx); err != nil {
		if security.IsViolation(err) {
			e.metrics.ObserveSecurityRejection()
		}
		return failedResult(step.ID, err), err
	}

	if !e.cacheable(step) {
		return exec.Execute(stepCtx, step, resolved, r.execCtx)
	}

	key, err := cache.DeriveKey(cache.KeyMaterial{
		StepID:        step.ID,
		Config:        executor.CacheConfig(step, resolved),
		Inputs:        resolved.Inputs,
		EngineVersion: Version,
		ProfileName:   r.validator.Profile().Name,
	}, cacheFragment(step))
	if err != nil {
		return failedResult(step.ID, err), err
	}

	var execResult *types.StepResult
	outputs, cached, err := e.cache.GetOrExecute(stepCtx, key, cacheTTL(step), func(c context.Context) (map[string]any, error) {
		res, execErr := exec.Execute(c, step, resolved, r.execCtx)
		execResult = res
		if execErr != nil {
			return nil, execErr
		}
		return res.Outputs, nil
	})
	if err != nil {
		if execResult != nil {
			execResult.CacheKey = key
			return execResult, err
		}
		return failedResult(step.ID, err), err
	}

	if cached {
		e.metrics.ObserveCache(true)
		result := types.NewStepResult(step.ID)
		result.Status = types.StepStatusCached
		result.Outputs = outputs
		result.Cached = true
		result.CacheKey = key
		result.Finish()
		return result, nil
	}
	e.metrics.ObserveCache(false)
	execResult.CacheKey = key
	return execResult, nil
}

// cacheable reports whether a step participates in the result cache.
// Assert and conditional steps re-evaluate against live results, and
// non-idempotent delegated steps must stay at-most-once per execution,
// never deduplicated across executions.
func (e *Engine) cacheable(step *types.Step) bool {
	if e.cache == nil || !step.Cache.IsEnabled() {
		return false
	}
	switch step.Kind {
	case types.StepKindCommand, types.StepKindTemplate:
		return true
	case types.StepKindDelegated:
		return step.Idempotent
	}
	return false
}

// stepTimeout is the step's declared timeout, tightened by its resource
// override when one is set. The profile ceiling is applied separately in
// StepContext.
func stepTimeout(step *types.Step) time.Duration {
	t := step.Timeout.Std()
	if step.Resources != nil {
		if rt := step.Resources.Timeout.Std(); rt > 0 && (t <= 0 || rt < t) {
			t = rt
		}
	}
	return t
}

func cacheFragment(step *types.Step) string {
	if step.Cache != nil {
		return step.Cache.Key
	}
	return ""
}

func cacheTTL(step *types.Step) time.Duration {
	if step.Cache != nil && step.Cache.TTL > 0 {
		return step.Cache.TTL.Std()
	}
	return 0
}

// finalize computes workflow outputs and the terminal status, persisting
// the last transition outside the (possibly cancelled) run context.
func (e *Engine) finalize(ctx context.Context, r *run) (*types.ExecutionState, error) {
	st := r.state

	for _, rec := range st.Steps {
		if rec.Status == types.StepStatusRunning {
			// Interrupted mid-step; it re-runs on resume.
			rec.Status = types.StepStatusPending
		}
	}

	var failedIDs []string
	for _, step := range r.workflow.Steps {
		if st.Steps[step.ID].Status == types.StepStatusFailed {
			failedIDs = append(failedIDs, step.ID)
		}
	}
	if len(failedIDs) > 0 {
		// A failed execution is terminal; steps downstream of a failure
		// can never run and end up skipped, not pending.
		for _, id := range failedIDs {
			for _, dep := range r.graph.TransitiveDependents(id) {
				e.skipStep(r, dep, "dependency failed")
			}
		}
	}

	interrupted := false
	for _, rec := range st.Steps {
		if rec.Status == types.StepStatusPending {
			interrupted = true
			break
		}
	}

	switch {
	case len(failedIDs) > 0:
		failedStep := failedIDs[0]
		st.Status = types.ExecutionStatusFailed
		st.Error = "step " + failedStep + " failed: " + st.Steps[failedStep].Error
		e.audit(r, "", types.AuditCategoryLifecycle, types.AuditOutcomeFailed, st.Error)
	case interrupted:
		st.Status = types.ExecutionStatusPaused
		e.audit(r, "", types.AuditCategoryLifecycle, types.AuditOutcomeSkipped, "execution paused")
	default:
		st.Status = types.ExecutionStatusCompleted
		st.Outputs = e.resolveOutputs(r)
		e.audit(r, "", types.AuditCategoryLifecycle, types.AuditOutcomeSucceeded, "execution completed")
	}
	e.metrics.ObserveExecution(st.Status)

	if err := e.persist(context.Background(), st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// resolveOutputs evaluates declared workflow outputs against the results
// document.
func (e *Engine) resolveOutputs(r *run) map[string]any {
	if len(r.workflow.Outputs) == 0 {
		return nil
	}

	steps := make(map[string]any, len(r.state.Steps))
	for id, rec := range r.state.Steps {
		steps[id] = map[string]any{
			"status":  string(rec.Status),
			"outputs": rec.Outputs,
		}
	}
	doc := map[string]any{
		"steps":  steps,
		"inputs": r.state.Inputs,
	}

	outputs := make(map[string]any, len(r.workflow.Outputs))
	for _, spec := range r.workflow.Outputs {
		expr, err := jp.ParseString(outputPath(spec.From))
		if err != nil {
			logger.Warn("workflow output %s: invalid reference %s: %v", spec.Name, spec.From, err)
			continue
		}
		matches := expr.Get(doc)
		if len(matches) == 0 {
			logger.Warn("workflow output %s: %s matched nothing", spec.Name, spec.From)
			continue
		}
		outputs[spec.Name] = matches[0]
	}
	return outputs
}

// outputPath converts a dotted results reference into a bracket-quoted
// JSONPath so dashed step ids resolve correctly.
func outputPath(from string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(from, ".") {
		b.WriteString("['")
		b.WriteString(part)
		b.WriteString("']")
	}
	return b.String()
}

// persist appends the current state as a new version.
func (e *Engine) persist(ctx context.Context, st *types.ExecutionState) error {
	return e.store.Save(ctx, st)
}

// audit emits one event; audit failures are logged, never fatal.
func (e *Engine) audit(r *run, stepID string, category types.AuditCategory, outcome types.AuditOutcome, detail string) {
	event := audit.NewEvent(r.state.ID, stepID, r.validator.Principal(), category, outcome, detail)
	if err := e.sink.Record(event); err != nil {
		logger.Error("recording audit event: %v", err)
	}
}

// sleepBackoff waits the retry delay for the given attempt, doubling when
// exponential and capping at MaxDelay. Returns false if the context ended
// first.
func sleepBackoff(ctx context.Context, policy *types.RetryPolicy, attempt int) bool {
	delay := time.Second
	if policy != nil && policy.Delay > 0 {
		delay = policy.Delay.Std()
	}
	if policy != nil && policy.Exponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if max := policy.MaxDelay.Std(); max > 0 && delay >= max {
				delay = max
				break
			}
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// failedResult wraps an error into a failed StepResult.
func failedResult(stepID string, err error) *types.StepResult {
	result := types.NewStepResult(stepID)
	result.Fail(err)
	result.Finish()
	return result
}
