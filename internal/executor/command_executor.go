package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/NSvoltage/secureflow/pkg/logger"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// maxCapturedOutput bounds captured stdout/stderr per stream.
const maxCapturedOutput = 1 << 20

// CommandExecutor runs validated external commands. Commands are executed
// argv-style without a shell; profiles that permit chaining run through
// /bin/sh instead.
type CommandExecutor struct{}

// NewCommandExecutor creates a CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Kind returns the handled step kind.
func (e *CommandExecutor) Kind() types.StepKind {
	return types.StepKindCommand
}

// ValidateInputs runs the security choke point on the resolved command and
// working directory.
func (e *CommandExecutor) ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error {
	if err := execCtx.Validator.ValidateCommand(execCtx.ExecutionID, step.ID, resolved.Command); err != nil {
		return err
	}
	if resolved.WorkingDir != "" {
		if err := execCtx.Validator.ValidatePath(execCtx.ExecutionID, step.ID, resolved.WorkingDir); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the command and captures its outputs.
func (e *CommandExecutor) Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error) {
	result := types.NewStepResult(step.ID)
	defer result.Finish()

	cmd, err := e.buildCommand(ctx, resolved, execCtx)
	if err != nil {
		result.Fail(err)
		return result, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = newCappedWriter(&stdout, maxCapturedOutput)
	cmd.Stderr = newCappedWriter(&stderr, maxCapturedOutput)

	logger.Debug("step %s: running %q", step.ID, resolved.Command)
	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			execErr := NewExecutionError(step.ID, "starting command", runErr)
			result.Fail(execErr)
			return result, execErr
		}
	}
	if ctx.Err() != nil {
		timeoutErr := NewTimeoutError(step.ID, step.Timeout.Std())
		result.Fail(timeoutErr)
		return result, timeoutErr
	}

	result.Outputs = map[string]any{
		"exit_code": exitCode,
		"stdout":    strings.TrimRight(stdout.String(), "\n"),
		"stderr":    strings.TrimRight(stderr.String(), "\n"),
	}
	if err := extractOutputs(step, result.Outputs); err != nil {
		result.Fail(err)
		return result, err
	}

	if exitCode != 0 {
		execErr := NewExecutionError(step.ID, fmt.Sprintf("command exited with code %d", exitCode), nil)
		result.Fail(execErr)
		return result, execErr
	}
	return result, nil
}

func (e *CommandExecutor) buildCommand(ctx context.Context, resolved *ResolvedStep, execCtx *ExecutionContext) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if execCtx.Validator.Profile().AllowChaining && strings.ContainsAny(resolved.Command, ";&|<>`$") {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", resolved.Command)
	} else {
		argv := strings.Fields(resolved.Command)
		if len(argv) == 0 {
			return nil, NewExecutionError("", "empty command", nil)
		}
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}

	workdir := execCtx.Validator.WorkspaceRoot()
	if resolved.WorkingDir != "" {
		workdir = filepath.Join(workdir, resolved.WorkingDir)
	}
	cmd.Dir = workdir

	// The child sees a scrubbed environment, never the engine's.
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + workdir,
		"LANG=C.UTF-8",
	}
	if execCtx.Workflow != nil {
		for k, v := range execCtx.Workflow.Environment {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range resolved.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	return cmd, nil
}

// cappedWriter discards bytes beyond its limit so a noisy child cannot
// balloon the engine's memory.
type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func newCappedWriter(buf *bytes.Buffer, limit int) *cappedWriter {
	return &cappedWriter{buf: buf, limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

// extractOutputs maps declared output names onto captured streams. A
// source of "stdout", "stderr", or "exit_code" copies the raw value; a
// source starting with "$" is a JSONPath applied to stdout parsed as JSON.
func extractOutputs(step *types.Step, outputs map[string]any) error {
	for name, source := range step.Outputs {
		switch {
		case source == "stdout" || source == "stderr" || source == "exit_code":
			outputs[name] = outputs[source]
		case strings.HasPrefix(source, "$"):
			doc, err := oj.ParseString(outputs["stdout"].(string))
			if err != nil {
				return NewExecutionError(step.ID, fmt.Sprintf("output %s: stdout is not valid JSON", name), err)
			}
			path, err := jp.ParseString(source)
			if err != nil {
				return NewExecutionError(step.ID, fmt.Sprintf("output %s: invalid JSONPath", name), err)
			}
			matches := path.Get(doc)
			if len(matches) == 0 {
				return NewExecutionError(step.ID, fmt.Sprintf("output %s: JSONPath matched nothing", name), nil)
			}
			outputs[name] = matches[0]
		default:
			return NewExecutionError(step.ID, fmt.Sprintf("output %s: unknown source %q", name, source), nil)
		}
	}
	return nil
}
