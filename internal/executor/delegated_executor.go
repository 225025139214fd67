package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/NSvoltage/secureflow/internal/security"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// AgentBridge hands a delegated step's request to an external assistant
// and returns its result. The engine treats the result as opaque.
type AgentBridge interface {
	Invoke(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error)
}

// DelegatedExecutor forwards a step to an external assistant through the
// configured bridge. Delegated steps are never retried automatically
// unless marked idempotent; the engine cannot know whether the assistant's
// side effects happened.
type DelegatedExecutor struct{}

// NewDelegatedExecutor creates a DelegatedExecutor.
func NewDelegatedExecutor() *DelegatedExecutor {
	return &DelegatedExecutor{}
}

// Kind returns the handled step kind.
func (e *DelegatedExecutor) Kind() types.StepKind {
	return types.StepKindDelegated
}

// ValidateInputs checks the delegate permission and the resolved prompt.
func (e *DelegatedExecutor) ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error {
	if err := execCtx.Validator.ValidateDelegation(execCtx.ExecutionID, step.ID); err != nil {
		return err
	}
	return execCtx.Validator.ValidateInputValue(execCtx.ExecutionID, step.ID, resolved.Prompt)
}

// Execute forwards the request through the bridge.
func (e *DelegatedExecutor) Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error) {
	result := types.NewStepResult(step.ID)
	defer result.Finish()

	if execCtx.Bridge == nil {
		execErr := NewExecutionError(step.ID, "no agent bridge configured", nil)
		result.Fail(execErr)
		return result, execErr
	}

	req := &types.AgentRequest{
		ExecutionID: execCtx.ExecutionID,
		StepID:      step.ID,
		Prompt:      resolved.Prompt,
		Context:     security.RedactMap(resolved.Inputs),
		Principal:   execCtx.Validator.Principal(),
		Profile:     execCtx.Validator.Profile().Name,
	}

	agentResult, err := execCtx.Bridge.Invoke(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			timeoutErr := NewTimeoutError(step.ID, step.Timeout.Std())
			result.Fail(timeoutErr)
			return result, timeoutErr
		}
		execErr := NewExecutionError(step.ID, "invoking agent", err)
		result.Fail(execErr)
		return result, execErr
	}

	result.Outputs["success"] = agentResult.Success
	if agentResult.Diff != "" {
		result.Outputs["diff"] = agentResult.Diff
	}
	if len(agentResult.Artifacts) > 0 {
		result.Outputs["artifacts"] = agentResult.Artifacts
	}
	if agentResult.TokensUsed > 0 {
		result.Outputs["tokens_used"] = agentResult.TokensUsed
	}

	if !agentResult.Success {
		execErr := NewExecutionError(step.ID, "agent reported failure: "+agentResult.Error, nil)
		result.Fail(execErr)
		return result, execErr
	}
	return result, nil
}

// HTTPBridge invokes the assistant over HTTP. The endpoint receives a JSON
// AgentRequest and must answer with a JSON AgentResult.
type HTTPBridge struct {
	endpoint string
	client   *fasthttp.Client
	timeout  time.Duration
}

// NewHTTPBridge creates a bridge posting to the given endpoint.
func NewHTTPBridge(endpoint string, timeout time.Duration) *HTTPBridge {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPBridge{
		endpoint: endpoint,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: 30 * time.Second,
		},
		timeout: timeout,
	}
}

// Invoke posts the request and decodes the assistant's result.
func (b *HTTPBridge) Invoke(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding agent request: %w", err)
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(b.endpoint)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(body)

	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := b.client.DoTimeout(httpReq, httpResp, timeout); err != nil {
		return nil, fmt.Errorf("agent endpoint: %w", err)
	}
	if code := httpResp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("agent endpoint returned status %d", code)
	}

	var result types.AgentResult
	if err := json.Unmarshal(httpResp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decoding agent result: %w", err)
	}
	return &result, nil
}

// BridgeFunc adapts a function to the AgentBridge interface.
type BridgeFunc func(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error)

// Invoke implements AgentBridge.
func (f BridgeFunc) Invoke(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	return f(ctx, req)
}
