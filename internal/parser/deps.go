package parser

import (
	"sort"
	"strings"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// ImplicitDependencies returns the ids of steps referenced through
// {{ steps.<id>... }} placeholders or condition expressions in any
// templated field of the step. The result is sorted and deduplicated.
func ImplicitDependencies(step *types.Step) []string {
	seen := make(map[string]bool)

	collect := func(refs []string) {
		for _, ref := range refs {
			parts := strings.Split(ref, ".")
			if len(parts) >= 2 && parts[0] == expression.RootSteps {
				seen[parts[1]] = true
			}
		}
	}

	for _, field := range templatedFields(step) {
		refs, _ := expression.ScanReferences(field)
		collect(refs)
	}
	for _, expr := range expressionFields(step) {
		if ast, err := expression.Parse(expr); err == nil {
			collect(ast.References())
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// templatedFields lists every string field of a step that may carry
// {{ ... }} placeholders.
func templatedFields(step *types.Step) []string {
	fields := []string{step.Command, step.WorkingDir, step.Template, step.Output, step.Message, step.Prompt}
	for _, v := range step.Env {
		fields = append(fields, v)
	}
	collectStrings(step.Inputs, &fields)
	return fields
}

// expressionFields lists every field that holds a bare expression rather
// than interpolated text.
func expressionFields(step *types.Step) []string {
	if step.Condition != "" {
		return []string{step.Condition}
	}
	return nil
}

func collectStrings(v any, out *[]string) {
	switch val := v.(type) {
	case string:
		*out = append(*out, val)
	case map[string]any:
		for _, item := range val {
			collectStrings(item, out)
		}
	case []any:
		for _, item := range val {
			collectStrings(item, out)
		}
	}
}
