package executor

import (
	"fmt"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// ResolvedStep holds the concrete values of a step's templated fields
// after interpolation against the execution namespace. Validation and
// cache-key derivation both operate on these values, never on the raw
// templates.
type ResolvedStep struct {
	Command    string
	WorkingDir string
	Env        map[string]string
	Template   string
	Output     string
	Prompt     string
	Message    string
	Inputs     map[string]any
}

// Resolve interpolates every templated field of a step. Conditions are
// not resolved here; they are evaluated as expressions at execution time.
// Resolution is side-effect-free, so it can run again for cache-key
// derivation without observing different values.
func Resolve(step *types.Step, ns *expression.Namespace) (*ResolvedStep, error) {
	resolved := &ResolvedStep{}
	var err error

	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"command", step.Command, &resolved.Command},
		{"working_dir", step.WorkingDir, &resolved.WorkingDir},
		{"template", step.Template, &resolved.Template},
		{"output", step.Output, &resolved.Output},
		{"prompt", step.Prompt, &resolved.Prompt},
		{"message", step.Message, &resolved.Message},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		*f.dst, err = expression.Interpolate(f.src, ns)
		if err != nil {
			return nil, NewExecutionError(step.ID, fmt.Sprintf("resolving %s", f.name), err)
		}
	}

	if len(step.Env) > 0 {
		resolved.Env = make(map[string]string, len(step.Env))
		for k, v := range step.Env {
			resolved.Env[k], err = expression.Interpolate(v, ns)
			if err != nil {
				return nil, NewExecutionError(step.ID, fmt.Sprintf("resolving env %s", k), err)
			}
		}
	}

	if len(step.Inputs) > 0 {
		value, err := expression.InterpolateValue(step.Inputs, ns)
		if err != nil {
			return nil, NewExecutionError(step.ID, "resolving inputs", err)
		}
		resolved.Inputs, _ = value.(map[string]any)
	}
	return resolved, nil
}

// CacheConfig returns the normalized step configuration that participates
// in cache-key derivation.
func CacheConfig(step *types.Step, resolved *ResolvedStep) map[string]any {
	cfg := map[string]any{
		"kind": string(step.Kind),
	}
	if resolved.Command != "" {
		cfg["command"] = resolved.Command
	}
	if resolved.WorkingDir != "" {
		cfg["working_dir"] = resolved.WorkingDir
	}
	if len(resolved.Env) > 0 {
		env := make(map[string]any, len(resolved.Env))
		for k, v := range resolved.Env {
			env[k] = v
		}
		cfg["env"] = env
	}
	if resolved.Template != "" {
		cfg["template"] = resolved.Template
	}
	if resolved.Output != "" {
		cfg["output"] = resolved.Output
	}
	if resolved.Prompt != "" {
		cfg["prompt"] = resolved.Prompt
	}
	if step.Condition != "" {
		cfg["condition"] = step.Condition
	}
	if len(step.Outputs) > 0 {
		outs := make(map[string]any, len(step.Outputs))
		for k, v := range step.Outputs {
			outs[k] = v
		}
		cfg["outputs"] = outs
	}
	return cfg
}
