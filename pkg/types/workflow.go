// Package types defines the core data structures for the secure workflow
// orchestration engine.
package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// StepKind identifies the kind of work a step performs.
type StepKind string

const (
	// StepKindCommand runs a validated external command.
	StepKindCommand StepKind = "command"
	// StepKindAssert evaluates a boolean condition against prior results.
	StepKindAssert StepKind = "assert"
	// StepKindTemplate renders a file from an interpolated template body.
	StepKindTemplate StepKind = "template"
	// StepKindConditional gates dependent steps on a branch condition.
	StepKindConditional StepKind = "conditional"
	// StepKindDelegated hands the action to an external assistant.
	StepKindDelegated StepKind = "delegated"
)

// ValidStepKind reports whether kind names a supported step kind.
func ValidStepKind(kind StepKind) bool {
	switch kind {
	case StepKindCommand, StepKindAssert, StepKindTemplate, StepKindConditional, StepKindDelegated:
		return true
	}
	return false
}

// Duration wraps time.Duration so workflow documents can spell durations as
// strings ("30s", "5m") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value of type %T", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Workflow is a parsed, immutable workflow definition.
type Workflow struct {
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version" json:"version"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []InputSpec       `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`
	Outputs     []OutputSpec      `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Timeout     Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// InputSpec declares one typed workflow input.
type InputSpec struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	// Pattern is an optional regular expression a string input must match.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// OutputSpec declares one workflow output, resolved from step results.
type OutputSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// From is a path into the results document, e.g.
	// "steps.generate-report.outputs.path".
	From string `yaml:"from" json:"from"`
}

// Step is a single unit of work within a workflow.
type Step struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      StepKind `yaml:"kind" json:"kind"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Inputs are templated values resolved just before execution.
	Inputs map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	Retry     *RetryPolicy       `yaml:"retry,omitempty" json:"retry,omitempty"`
	Timeout   Duration           `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Cache     *CacheSpec         `yaml:"cache,omitempty" json:"cache,omitempty"`
	Resources *ResourceOverrides `yaml:"resources,omitempty" json:"resources,omitempty"`

	// command kind.
	Command    string            `yaml:"command,omitempty" json:"command,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// Outputs maps declared output names to sources ("stdout" or a dotted
	// path into the step's raw output document).
	Outputs map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// assert and conditional kinds.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Message   string `yaml:"message,omitempty" json:"message,omitempty"`
	// OnFailure controls assert behavior: fail (default), warn, or skip.
	OnFailure string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`

	// conditional kind: ids of steps gated by the branch outcome.
	Then []string `yaml:"then,omitempty" json:"then,omitempty"`
	Else []string `yaml:"else,omitempty" json:"else,omitempty"`

	// template kind.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	Output   string `yaml:"output,omitempty" json:"output,omitempty"`

	// delegated kind.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	// Idempotent marks a delegated action as safe to retry automatically.
	Idempotent bool `yaml:"idempotent,omitempty" json:"idempotent,omitempty"`
}

// RetryPolicy governs re-execution of a failed step.
type RetryPolicy struct {
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	Delay       Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	// Exponential doubles the delay after each failed attempt.
	Exponential bool     `yaml:"exponential,omitempty" json:"exponential,omitempty"`
	MaxDelay    Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
}

// CacheSpec configures result caching for a step.
type CacheSpec struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Key is an optional fragment that namespaces the derived cache key.
	// It never replaces input-hash based keying.
	Key string   `yaml:"key,omitempty" json:"key,omitempty"`
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// IsEnabled reports whether caching applies; caching defaults to on.
func (c *CacheSpec) IsEnabled() bool {
	if c == nil || c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// ResourceOverrides lets a step tighten (never widen beyond the profile)
// the resource ceilings applied to its execution.
type ResourceOverrides struct {
	MemoryMB int      `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}
