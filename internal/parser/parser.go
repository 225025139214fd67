// Package parser turns declarative workflow documents into validated
// in-memory definitions plus their dependency graphs. Nothing in this
// package executes anything.
package parser

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/NSvoltage/secureflow/internal/graph"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// YAMLParser decodes YAML workflow documents.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse decodes and validates a workflow definition. On success the
// returned workflow is immutable by convention and its dependency graph,
// including implicit dependencies inferred from step output references, is
// acyclic.
func (p *YAMLParser) Parse(data []byte) (*types.Workflow, error) {
	var workflow types.Workflow

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&workflow); err != nil {
		return nil, wrapYAMLError(err)
	}

	if errs := Validate(&workflow); errs.HasErrors() {
		return nil, errs
	}
	return &workflow, nil
}

// ParseFile decodes and validates a workflow definition from a file.
func (p *YAMLParser) ParseFile(path string) (*types.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(0, fmt.Sprintf("failed to read file: %s", path), err)
	}
	return p.Parse(data)
}

var yamlLinePattern = regexp.MustCompile(`(?:line |yaml: line )(\d+)`)

// wrapYAMLError converts a YAML decode error to a ParseError, extracting
// the line number when the yaml library embeds one in the message.
func wrapYAMLError(err error) error {
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return NewParseError(line, "invalid workflow document", err)
}

// BuildGraph constructs the dependency graph of a validated workflow:
// declared depends_on edges, implicit edges from {{ steps.X }} references,
// and gating edges from conditional steps to their branch members.
func BuildGraph(workflow *types.Workflow) (*graph.Graph, error) {
	ids := make([]string, len(workflow.Steps))
	for i, step := range workflow.Steps {
		ids[i] = step.ID
	}
	g, err := graph.New(ids)
	if err != nil {
		return nil, err
	}

	for _, step := range workflow.Steps {
		for _, dep := range step.DependsOn {
			if err := g.AddEdge(dep, step.ID); err != nil {
				return nil, err
			}
		}
		for _, ref := range ImplicitDependencies(&step) {
			if ref == step.ID {
				continue
			}
			if err := g.AddEdge(ref, step.ID); err != nil {
				return nil, err
			}
		}
		if step.Kind == types.StepKindConditional {
			for _, gated := range append(append([]string{}, step.Then...), step.Else...) {
				if err := g.AddEdge(step.ID, gated); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}
