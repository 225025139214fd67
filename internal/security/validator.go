// Package security implements the validation choke point that every
// resolved step input passes through before any executor runs. Validation
// happens after interpolation so decisions are made against concrete
// values, not templates.
package security

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/NSvoltage/secureflow/internal/audit"
	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// shellMetaPattern matches chaining, substitution, and redirection
// constructs. Profiles without AllowChaining reject any command matching it.
var shellMetaPattern = regexp.MustCompile("[;&|<>`]|\\$\\(|\\$\\{|\\n")

// dangerousPattern matches constructs that are rejected regardless of
// profile: piping into a shell, writing over devices, destructive recursive
// removal spliced after a separator.
var dangerousPattern = regexp.MustCompile(`(?i)(\|\s*(sh|bash|zsh)\b|>\s*/dev/|[;&]\s*rm\s+-rf|curl[^|]*\|\s*sh|wget[^|]*\|\s*sh)`)

// sensitiveDirs are top-level directories no resolved path may enter even
// when the path stays inside the workspace via symlink tricks at the string
// level.
var sensitiveDirs = map[string]bool{
	"etc": true, "proc": true, "sys": true, "dev": true, "root": true,
}

// Validator checks resolved commands, paths, templates, and expressions
// against one security context. Every rejection emits exactly one audit
// event and returns exactly one SecurityViolationError.
type Validator struct {
	secCtx        types.SecurityContext
	workspaceRoot string
	sink          audit.Sink
}

// NewValidator creates a Validator bound to a security context and a
// workspace root. All file system access by command and template steps is
// confined to the root.
func NewValidator(secCtx types.SecurityContext, workspaceRoot string, sink audit.Sink) *Validator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if secCtx.Profile == nil {
		secCtx.Profile = types.ProfileByName(types.ProfileRestricted)
	}
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		root = workspaceRoot
	}
	return &Validator{secCtx: secCtx, workspaceRoot: root, sink: sink}
}

// Principal returns the principal this validator enforces for.
func (v *Validator) Principal() string {
	return v.secCtx.PrincipalID
}

// Profile returns the active profile.
func (v *Validator) Profile() *types.Profile {
	return v.secCtx.Profile
}

// WorkspaceRoot returns the confinement root for file access.
func (v *Validator) WorkspaceRoot() string {
	return v.workspaceRoot
}

func (v *Validator) reject(executionID, stepID string, kind ViolationKind, reason string) error {
	event := audit.NewEvent(executionID, stepID, v.secCtx.PrincipalID,
		types.AuditCategorySecurity, types.AuditOutcomeRejected, string(kind)+": "+reason)
	_ = v.sink.Record(event)
	return NewViolation(kind, stepID, reason)
}

// ValidateCommand checks a fully resolved command line. The leading token
// must be on the profile's allow-list, shell metacharacters are rejected
// unless the profile allows chaining, and every path-looking argument must
// stay inside the workspace root.
func (v *Validator) ValidateCommand(executionID, stepID, command string) error {
	if !v.secCtx.Profile.AllowExecution {
		return v.reject(executionID, stepID, ViolationCommand, "profile does not permit command execution")
	}
	if !v.secCtx.HasPermission(types.PermissionCommand) {
		return v.reject(executionID, stepID, ViolationPermission, "principal lacks command execution permission")
	}
	if err := v.checkLength(executionID, stepID, ViolationCommand, command); err != nil {
		return err
	}

	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return v.reject(executionID, stepID, ViolationCommand, "empty command")
	}

	fields := strings.Fields(trimmed)
	executable := filepath.Base(fields[0])
	if !v.secCtx.Profile.CommandAllowed(executable) {
		return v.reject(executionID, stepID, ViolationCommand, "executable is not on the profile allow-list: "+executable)
	}

	if dangerousPattern.MatchString(trimmed) {
		return v.reject(executionID, stepID, ViolationCommand, "dangerous shell construct")
	}
	if !v.secCtx.Profile.AllowChaining && shellMetaPattern.MatchString(trimmed) {
		return v.reject(executionID, stepID, ViolationCommand, "shell metacharacters are not permitted by the profile")
	}

	for _, arg := range fields[1:] {
		if !looksLikePath(arg) {
			continue
		}
		if err := v.checkPath(executionID, stepID, arg); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath checks that a resolved file path stays inside the workspace
// root after normalization.
func (v *Validator) ValidatePath(executionID, stepID, path string) error {
	if err := v.checkLength(executionID, stepID, ViolationPath, path); err != nil {
		return err
	}
	return v.checkPath(executionID, stepID, path)
}

func (v *Validator) checkPath(executionID, stepID, path string) error {
	cleaned := filepath.Clean(path)

	resolved := cleaned
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(v.workspaceRoot, cleaned)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(v.workspaceRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return v.reject(executionID, stepID, ViolationPath, "path resolves outside the workspace root")
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if sensitiveDirs[part] {
			return v.reject(executionID, stepID, ViolationPath, "path enters a restricted directory: "+part)
		}
	}
	return nil
}

// ValidateTemplate checks template source before rendering. Placeholders
// may only reference the exposed namespace roots; reflective or
// double-underscore symbols are rejected.
func (v *Validator) ValidateTemplate(executionID, stepID, template string) error {
	if err := v.checkLength(executionID, stepID, ViolationTemplate, template); err != nil {
		return err
	}

	refs, err := expression.ScanReferences(template)
	if err != nil {
		return v.reject(executionID, stepID, ViolationTemplate, "template contains an unparsable placeholder")
	}
	for _, ref := range refs {
		if reason, bad := namespaceViolation(ref); bad {
			return v.reject(executionID, stepID, ViolationTemplate, reason)
		}
	}
	return nil
}

// ValidateExpression checks a condition or assertion expression without
// evaluating it. Assertions and conditionals go through the same
// restricted namespace as templates.
func (v *Validator) ValidateExpression(executionID, stepID, expr string) error {
	if err := v.checkLength(executionID, stepID, ViolationExpression, expr); err != nil {
		return err
	}

	ast, err := expression.Parse(expr)
	if err != nil {
		return v.reject(executionID, stepID, ViolationExpression, "expression does not parse")
	}
	for _, ref := range ast.References() {
		if reason, bad := namespaceViolation(ref); bad {
			return v.reject(executionID, stepID, ViolationExpression, reason)
		}
	}
	return nil
}

// ValidateInputValue length-checks one resolved workflow input value.
func (v *Validator) ValidateInputValue(executionID, name, value string) error {
	if err := v.checkLength(executionID, "", ViolationInput, value); err != nil {
		return err
	}
	_ = name
	return nil
}

// ValidateDelegation checks that the principal may hand work to an
// external agent.
func (v *Validator) ValidateDelegation(executionID, stepID string) error {
	if !v.secCtx.Profile.AllowExecution {
		return v.reject(executionID, stepID, ViolationPermission, "profile does not permit execution")
	}
	if !v.secCtx.HasPermission(types.PermissionDelegate) {
		return v.reject(executionID, stepID, ViolationPermission, "principal lacks delegation permission")
	}
	return nil
}

func (v *Validator) checkLength(executionID, stepID string, kind ViolationKind, value string) error {
	limit := v.secCtx.Profile.MaxInputLength
	if limit > 0 && len(value) > limit {
		return v.reject(executionID, stepID, kind, "input exceeds the profile length limit")
	}
	return nil
}

// namespaceViolation reports whether a referenced path escapes the exposed
// namespace.
func namespaceViolation(ref string) (string, bool) {
	parts := strings.Split(ref, ".")
	if !expression.AllowedRoot(parts[0]) {
		return "reference to a symbol outside the exposed namespace", true
	}
	for _, part := range parts {
		if strings.HasPrefix(part, "__") {
			return "reference to a reserved internal symbol", true
		}
	}
	return "", false
}

// looksLikePath reports whether a command argument should be subjected to
// path confinement checks. Flags and bare words are exempt.
func looksLikePath(arg string) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}
	return strings.Contains(arg, "/") || strings.HasPrefix(arg, "..")
}

var (
	secretPattern    = regexp.MustCompile(`(?i)(password|passwd|token|key|secret|credential)(s)?\s*[=:]\s*\S+`)
	secretKeyPattern = regexp.MustCompile(`(?i)(password|passwd|token|key|secret|credential)`)
)

// Redact masks secret-bearing key=value and key: value fragments in s.
// Used before any resolved input or error detail reaches a log or audit
// record.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "[REDACTED]")
}

// RedactMap returns a copy of m with values of secret-named keys masked.
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		if secretKeyPattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := val.(string); ok {
			out[k] = Redact(s)
			continue
		}
		out[k] = val
	}
	return out
}
