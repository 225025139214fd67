package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/pkg/types"
)

const validWorkflow = `
name: test-and-report
version: "1.0"
description: run tests, assert coverage, render a report

inputs:
  - name: branch
    type: string
    default: main
  - name: coverage_min
    type: number
    default: 80

steps:
  - id: run-tests
    kind: command
    command: "go test -coverprofile=cover.out ./..."
    timeout: 10m
    retry:
      max_attempts: 3
      delay: 2s
      exponential: true
    outputs:
      coverage: stdout

  - id: check-coverage
    kind: assert
    condition: "steps.run-tests.outputs.coverage >= inputs.coverage_min"
    message: "coverage below the declared minimum"

  - id: generate-report
    kind: template
    depends_on: [check-coverage]
    template: "coverage report for {{ inputs.branch }}: {{ steps.run-tests.outputs.coverage }}"
    output: reports/coverage.md

outputs:
  - name: report_path
    from: steps.generate-report.outputs.path
`

func TestParse_ValidWorkflow(t *testing.T) {
	p := NewYAMLParser()

	workflow, err := p.Parse([]byte(validWorkflow))
	require.NoError(t, err)

	assert.Equal(t, "test-and-report", workflow.Name)
	assert.Equal(t, "1.0", workflow.Version)
	require.Len(t, workflow.Steps, 3)

	run := workflow.StepByID("run-tests")
	require.NotNil(t, run)
	assert.Equal(t, types.StepKindCommand, run.Kind)
	assert.Equal(t, 10*time.Minute, run.Timeout.Std())
	require.NotNil(t, run.Retry)
	assert.Equal(t, 3, run.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, run.Retry.Delay.Std())
	assert.True(t, run.Retry.Exponential)

	require.Len(t, workflow.Outputs, 1)
	assert.Equal(t, "steps.generate-report.outputs.path", workflow.Outputs[0].From)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	doc := `
name: x
version: "1"
steps:
  - id: a
    kind: command
    command: "go build"
    no_such_field: true
`
	_, err := NewYAMLParser().Parse([]byte(doc))
	require.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := NewYAMLParser().Parse([]byte("name: [unclosed"))
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validWorkflow), 0o600))

	workflow, err := NewYAMLParser().ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-and-report", workflow.Name)

	_, err = NewYAMLParser().ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	doc := `
name: ""
version: "1"
steps:
  - id: a
    kind: command
    command: "go build"
  - id: a
    kind: nonsense
  - id: b
    kind: assert
    depends_on: [missing]
`
	_, err := NewYAMLParser().Parse([]byte(doc))
	require.Error(t, err)

	errs, ok := err.(ValidationErrors)
	require.True(t, ok, "validation returns the complete issue list")
	assert.GreaterOrEqual(t, len(errs), 4)

	messages := errs.Error()
	assert.Contains(t, messages, "workflow name is required")
	assert.Contains(t, messages, "duplicate step id")
	assert.Contains(t, messages, "unknown step kind")
	assert.Contains(t, messages, "unknown step: missing")
	assert.Contains(t, messages, "assert steps require a condition")
}

func TestValidate_CycleNamesEveryMember(t *testing.T) {
	doc := `
name: cyclic
version: "1"
steps:
  - id: a
    kind: command
    command: "go build"
    depends_on: [c]
  - id: b
    kind: command
    command: "go test"
    depends_on: [a]
  - id: c
    kind: command
    command: "go vet"
    depends_on: [b]
`
	_, err := NewYAMLParser().Parse([]byte(doc))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "dependency cycle")
	assert.Contains(t, msg, "a")
	assert.Contains(t, msg, "b")
	assert.Contains(t, msg, "c")
}

func TestValidate_ImplicitReferenceCycle(t *testing.T) {
	doc := `
name: cyclic
version: "1"
steps:
  - id: first
    kind: command
    command: "echo {{ steps.second.outputs.value }}"
  - id: second
    kind: command
    command: "echo {{ steps.first.outputs.value }}"
`
	_, err := NewYAMLParser().Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestValidate_KindPayloads(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		message string
	}{
		{
			name:    "command without command",
			step:    "  - id: s\n    kind: command",
			message: "require a command",
		},
		{
			name:    "template without output",
			step:    "  - id: s\n    kind: template\n    template: body",
			message: "require an output path",
		},
		{
			name:    "delegated without prompt",
			step:    "  - id: s\n    kind: delegated",
			message: "require a prompt",
		},
		{
			name:    "conditional without branches",
			step:    "  - id: s\n    kind: conditional\n    condition: \"true\"",
			message: "must gate at least one step",
		},
		{
			name:    "assert with bad on_failure",
			step:    "  - id: s\n    kind: assert\n    condition: \"true\"\n    on_failure: explode",
			message: "on_failure must be one of",
		},
		{
			name:    "negative retry",
			step:    "  - id: s\n    kind: command\n    command: \"go build\"\n    retry:\n      max_attempts: 0",
			message: "max_attempts must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "name: x\nversion: \"1\"\nsteps:\n" + tt.step + "\n"
			_, err := NewYAMLParser().Parse([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_DelegatedRetryRequiresIdempotent(t *testing.T) {
	doc := `
name: x
version: "1"
steps:
  - id: fix
    kind: delegated
    prompt: "fix the failing test"
    retry:
      max_attempts: 3
`
	_, err := NewYAMLParser().Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not retried unless marked idempotent")

	doc = `
name: x
version: "1"
steps:
  - id: fix
    kind: delegated
    prompt: "fix the failing test"
    idempotent: true
    retry:
      max_attempts: 3
`
	_, err = NewYAMLParser().Parse([]byte(doc))
	require.NoError(t, err)
}

func TestValidate_ConditionalBranches(t *testing.T) {
	doc := `
name: branching
version: "1"
steps:
  - id: gate
    kind: conditional
    condition: "inputs.deploy == true"
    then: [deploy]
    else: [notify]
  - id: deploy
    kind: command
    command: "make deploy"
  - id: notify
    kind: command
    command: "make notify"
inputs:
  - name: deploy
    type: boolean
    default: false
`
	workflow, err := NewYAMLParser().Parse([]byte(doc))
	require.NoError(t, err)

	g, err := BuildGraph(workflow)
	require.NoError(t, err)

	// Gated steps depend on their conditional.
	assert.ElementsMatch(t, []string{"deploy", "notify"}, g.Dependents("gate"))
}

func TestImplicitDependencies(t *testing.T) {
	step := types.Step{
		ID:      "report",
		Kind:    types.StepKindTemplate,
		Template: "coverage {{ steps.run-tests.outputs.coverage }} on {{ inputs.branch }} vs {{ steps.lint.outputs.score }}",
		Output:  "out.md",
	}
	deps := ImplicitDependencies(&step)
	assert.Equal(t, []string{"lint", "run-tests"}, deps)
}

func TestImplicitDependencies_Condition(t *testing.T) {
	step := types.Step{
		ID:        "check",
		Kind:      types.StepKindAssert,
		Condition: "steps.run-tests.outputs.coverage >= 80",
	}
	assert.Equal(t, []string{"run-tests"}, ImplicitDependencies(&step))
}

func TestBindInputs(t *testing.T) {
	workflow := &types.Workflow{
		Name:    "x",
		Version: "1",
		Inputs: []types.InputSpec{
			{Name: "branch", Type: "string", Default: "main", Pattern: `^[a-z][a-z0-9/-]*$`},
			{Name: "coverage_min", Type: "number", Default: 80},
			{Name: "ticket", Type: "string", Required: true},
		},
	}

	bound, errs := BindInputs(workflow, map[string]any{"ticket": "ABC-1"})
	require.False(t, errs.HasErrors())
	assert.Equal(t, "main", bound["branch"])
	assert.Equal(t, 80, bound["coverage_min"])
	assert.Equal(t, "ABC-1", bound["ticket"])
}

func TestBindInputs_Issues(t *testing.T) {
	workflow := &types.Workflow{
		Name:    "x",
		Version: "1",
		Inputs: []types.InputSpec{
			{Name: "branch", Type: "string", Pattern: `^[a-z-]+$`},
			{Name: "count", Type: "number"},
			{Name: "ticket", Type: "string", Required: true},
		},
	}

	_, errs := BindInputs(workflow, map[string]any{
		"branch":     "Feature/NEW",
		"count":      "not-a-number",
		"undeclared": 1,
	})
	require.True(t, errs.HasErrors())

	msg := errs.Error()
	assert.Contains(t, msg, "required input is missing")
	assert.Contains(t, msg, "does not match the validation pattern")
	assert.Contains(t, msg, "does not match declared type number")
	assert.Contains(t, msg, "not declared by the workflow")
}
