package types

import "time"

// SecurityContext binds a principal and a security profile to one execution.
// It is supplied by an external authentication/configuration layer and is
// read-only inside the engine.
type SecurityContext struct {
	PrincipalID string   `json:"principal_id"`
	Permissions []string `json:"permissions"`
	Profile     *Profile `json:"profile"`
}

// HasPermission reports whether the principal holds the named permission.
// The "admin" permission implies everything.
func (c *SecurityContext) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}

// Permission names consumed by the engine and executors.
const (
	PermissionExecute   = "workflow.execute"
	PermissionCommand   = "command.execute"
	PermissionFileWrite = "file.write"
	PermissionDelegate  = "agent.delegate"
)

// Profile is a named bundle of permission constraints: allowed commands,
// filesystem reach, input limits, and concurrency/resource ceilings.
type Profile struct {
	Name string `yaml:"name" json:"name"`

	// AllowedCommands is the allow-list checked against the leading
	// executable token of command steps.
	AllowedCommands []string `yaml:"allowed_commands" json:"allowed_commands"`

	// AllowChaining permits shell chaining/substitution/redirection
	// metacharacters in commands. Off for every built-in profile except
	// elevated.
	AllowChaining bool `yaml:"allow_chaining" json:"allow_chaining"`

	// AllowExecution gates execution entirely; plan_only profiles parse,
	// validate and simulate but never run an executor.
	AllowExecution bool `yaml:"allow_execution" json:"allow_execution"`

	// MaxInputLength caps the length of any single resolved string input.
	MaxInputLength int `yaml:"max_input_length" json:"max_input_length"`

	// MaxConcurrent is the concurrency ceiling for step execution.
	MaxConcurrent int64 `yaml:"max_concurrent" json:"max_concurrent"`

	MaxMemoryMB         int      `yaml:"max_memory_mb" json:"max_memory_mb"`
	MaxStepDuration     Duration `yaml:"max_step_duration" json:"max_step_duration"`
	MaxWorkflowDuration Duration `yaml:"max_workflow_duration" json:"max_workflow_duration"`
}

// CommandAllowed reports whether the executable name is on the allow-list.
func (p *Profile) CommandAllowed(name string) bool {
	for _, c := range p.AllowedCommands {
		if c == name {
			return true
		}
	}
	return false
}

// defaultAllowedCommands is shared by the built-in profiles.
var defaultAllowedCommands = []string{
	"pytest", "npm", "git", "python", "python3", "pip", "pip3",
	"node", "yarn", "go", "make", "cargo", "mvn", "gradle",
}

// Built-in profile names.
const (
	ProfilePlanOnly   = "plan_only"
	ProfileRestricted = "restricted"
	ProfileStandard   = "standard"
	ProfileElevated   = "elevated"
)

// ProfileByName returns a copy of a built-in profile, or nil for unknown
// names. External configuration layers may define additional profiles.
func ProfileByName(name string) *Profile {
	var p Profile
	switch name {
	case ProfilePlanOnly:
		p = Profile{
			Name:            ProfilePlanOnly,
			AllowedCommands: nil,
			AllowExecution:  false,
			MaxInputLength:  2000,
			MaxConcurrent:   10,
			MaxMemoryMB:     256,
		}
	case ProfileRestricted:
		p = Profile{
			Name:            ProfileRestricted,
			AllowedCommands: defaultAllowedCommands,
			AllowExecution:  true,
			MaxInputLength:  5000,
			MaxConcurrent:   10,
			MaxMemoryMB:     512,
		}
	case ProfileStandard:
		p = Profile{
			Name:            ProfileStandard,
			AllowedCommands: defaultAllowedCommands,
			AllowExecution:  true,
			MaxInputLength:  10000,
			MaxConcurrent:   50,
			MaxMemoryMB:     1024,
		}
	case ProfileElevated:
		p = Profile{
			Name:            ProfileElevated,
			AllowedCommands: defaultAllowedCommands,
			AllowChaining:   true,
			AllowExecution:  true,
			MaxInputLength:  50000,
			MaxConcurrent:   100,
			MaxMemoryMB:     2048,
		}
	default:
		return nil
	}
	p.MaxStepDuration = Duration(30 * time.Minute)
	p.MaxWorkflowDuration = Duration(time.Hour)
	cmds := make([]string, len(p.AllowedCommands))
	copy(cmds, p.AllowedCommands)
	p.AllowedCommands = cmds
	return &p
}
