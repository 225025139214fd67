package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNamespace() *Namespace {
	return NewNamespace().
		Bind(RootInputs, map[string]any{
			"branch":   "main",
			"coverage": 85.0,
			"count":    10,
			"verbose":  true,
			"empty":    "",
		}).
		Bind(RootSteps, map[string]any{
			"run-tests": map[string]any{
				"exit_code": 0,
				"stdout":    "coverage: 85%",
				"outputs": map[string]any{
					"coverage": 85.0,
				},
			},
		}).
		Bind(RootWorkflow, map[string]any{
			"name":    "deploy",
			"version": "1.2.0",
		})
}

func TestEvaluator_SimpleLiterals(t *testing.T) {
	evaluator := NewEvaluator()
	ns := NewNamespace()

	tests := []struct {
		expr     string
		expected bool
	}{
		{expr: "true", expected: true},
		{expr: "false", expected: false},
		{expr: "TRUE", expected: true},
		{expr: "FALSE", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := evaluator.EvaluateString(tt.expr, ns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluator_NamespaceResolution(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	tests := []struct {
		expr     string
		expected bool
	}{
		{expr: "inputs.verbose", expected: true},
		{expr: "inputs.branch == 'main'", expected: true},
		{expr: "inputs.branch != 'develop'", expected: true},
		{expr: "inputs.count == 10", expected: true},
		{expr: "steps.run-tests.exit_code == 0", expected: true},
		{expr: "steps.run-tests.outputs.coverage >= 80", expected: true},
		{expr: "steps.run-tests.outputs.coverage >= 90", expected: false},
		{expr: "workflow.name == 'deploy'", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := evaluator.EvaluateString(tt.expr, ns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluator_LogicalOperators(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	tests := []struct {
		expr     string
		expected bool
	}{
		{expr: "inputs.verbose AND inputs.count > 5", expected: true},
		{expr: "inputs.verbose && inputs.count > 100", expected: false},
		{expr: "inputs.count > 100 OR inputs.branch == 'main'", expected: true},
		{expr: "inputs.count > 100 || inputs.count < 5", expected: false},
		{expr: "NOT inputs.verbose", expected: false},
		{expr: "!inputs.verbose", expected: false},
		{expr: "NOT (inputs.count > 100)", expected: true},
		{expr: "(inputs.verbose OR false) AND inputs.count >= 10", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := evaluator.EvaluateString(tt.expr, ns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluator_ShortCircuit(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	// The right operand references an unbound root; short-circuit evaluation
	// must never touch it.
	result, err := evaluator.EvaluateString("inputs.verbose OR execution.id == 'x'", ns)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = evaluator.EvaluateString("inputs.count > 100 AND execution.id == 'x'", ns)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluator_Builtins(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	tests := []struct {
		expr     string
		expected bool
	}{
		{expr: "len(inputs.branch) == 4", expected: true},
		{expr: "contains(steps.run-tests.stdout, 'coverage')", expected: true},
		{expr: "upper(inputs.branch) == 'MAIN'", expected: true},
		{expr: "lower('MAIN') == inputs.branch", expected: true},
		{expr: "trim('  main  ') == inputs.branch", expected: true},
		{expr: "default(inputs.empty, 'fallback') == 'fallback'", expected: true},
		{expr: "coalesce(inputs.empty, inputs.branch) == 'main'", expected: true},
		{expr: "min(inputs.count, 3) == 3", expected: true},
		{expr: "max(inputs.count, 3) == 10", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := evaluator.EvaluateString(tt.expr, ns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluator_UnknownFunctionRejected(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	_, err := evaluator.EvaluateString("exec('rm -rf /')", ns)
	require.Error(t, err)

	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Contains(t, refErr.Error(), "exec")
}

func TestEvaluator_NamespaceViolations(t *testing.T) {
	evaluator := NewEvaluator()
	ns := testNamespace()

	tests := []struct {
		name string
		expr string
	}{
		{name: "unknown root", expr: "os.environ == 'x'"},
		{name: "dunder segment", expr: "inputs.__class__ == 'x'"},
		{name: "missing path", expr: "inputs.nonexistent == 'x'"},
		{name: "unbound root", expr: "execution.id == 'x'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluator.EvaluateString(tt.expr, ns)
			require.Error(t, err)
			var refErr *ReferenceError
			assert.ErrorAs(t, err, &refErr)
		})
	}
}

func TestEvaluator_TypeCoercion(t *testing.T) {
	evaluator := NewEvaluator()
	ns := NewNamespace().Bind(RootInputs, map[string]any{
		"int_val":   42,
		"float_val": 42.0,
		"str_num":   "42",
	})

	result, err := evaluator.EvaluateString("inputs.int_val == inputs.float_val", ns)
	require.NoError(t, err)
	assert.True(t, result, "int and float with same value compare equal")

	result, err = evaluator.EvaluateString("inputs.str_num == 42", ns)
	require.NoError(t, err)
	assert.True(t, result, "numeric strings coerce for comparison")
}

func TestEvaluator_NilComparisons(t *testing.T) {
	evaluator := NewEvaluator()
	ns := NewNamespace().Bind(RootInputs, map[string]any{
		"absent": nil,
	})

	result, err := evaluator.EvaluateString("inputs.absent == ''", ns)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = evaluator.EvaluateString("inputs.absent != 'x'", ns)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_PackageLevel(t *testing.T) {
	ns := testNamespace()
	result, err := Evaluate("inputs.coverage >= 80 AND steps.run-tests.exit_code == 0", ns)
	require.NoError(t, err)
	assert.True(t, result)
}
