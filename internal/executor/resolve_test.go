package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

func resolveNamespace() *expression.Namespace {
	return expression.NewNamespace().
		Bind(expression.RootInputs, map[string]any{"branch": "main", "count": 3}).
		Bind(expression.RootSteps, map[string]any{
			"build": map[string]any{"outputs": map[string]any{"artifact": "app.tar.gz"}},
		})
}

func TestResolveInterpolatesTemplatedFields(t *testing.T) {
	step := &types.Step{
		ID:         "deploy",
		Kind:       types.StepKindCommand,
		Command:    "git push origin {{ inputs.branch }}",
		WorkingDir: "checkout/{{ inputs.branch }}",
		Env:        map[string]string{"ARTIFACT": "{{ steps.build.outputs.artifact }}"},
	}
	resolved, err := Resolve(step, resolveNamespace())
	require.NoError(t, err)
	assert.Equal(t, "git push origin main", resolved.Command)
	assert.Equal(t, "checkout/main", resolved.WorkingDir)
	assert.Equal(t, "app.tar.gz", resolved.Env["ARTIFACT"])
}

func TestResolvePreservesInputTypes(t *testing.T) {
	step := &types.Step{
		ID:   "summarize",
		Kind: types.StepKindDelegated,
		Inputs: map[string]any{
			"count": "{{ inputs.count }}",
			"label": "run-{{ inputs.branch }}",
		},
	}
	resolved, err := Resolve(step, resolveNamespace())
	require.NoError(t, err)
	// A sole placeholder keeps the referenced value's type.
	assert.Equal(t, 3, resolved.Inputs["count"])
	assert.Equal(t, "run-main", resolved.Inputs["label"])
}

func TestResolveUnknownReferenceFails(t *testing.T) {
	step := &types.Step{ID: "bad", Kind: types.StepKindCommand, Command: "echo {{ steps.missing.outputs.x }}"}
	_, err := Resolve(step, resolveNamespace())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "bad", execErr.StepID)
}

func TestCacheConfigNormalization(t *testing.T) {
	step := &types.Step{ID: "build", Kind: types.StepKindCommand, Command: "make {{ inputs.branch }}"}
	resolved, err := Resolve(step, resolveNamespace())
	require.NoError(t, err)

	cfg := CacheConfig(step, resolved)
	assert.Equal(t, "command", cfg["kind"])
	// The resolved command participates in keying, not the raw template.
	assert.Equal(t, "make main", cfg["command"])
	assert.NotContains(t, cfg, "working_dir")
}
