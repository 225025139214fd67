package parser

import (
	"fmt"
	"regexp"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// BindInputs merges supplied execution inputs with the workflow's declared
// input schema: defaults fill gaps, required inputs must be present, typed
// inputs must match their declared type, and pattern-constrained strings
// must match. Undeclared inputs are rejected. Returns the complete issue
// list.
func BindInputs(workflow *types.Workflow, supplied map[string]any) (map[string]any, ValidationErrors) {
	var errs ValidationErrors
	addError := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	declared := make(map[string]types.InputSpec, len(workflow.Inputs))
	for _, spec := range workflow.Inputs {
		declared[spec.Name] = spec
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			addError("inputs."+name, "input is not declared by the workflow")
		}
	}

	bound := make(map[string]any, len(declared))
	for _, spec := range workflow.Inputs {
		field := "inputs." + spec.Name
		value, present := supplied[spec.Name]
		if !present {
			if spec.Required {
				addError(field, "required input is missing")
				continue
			}
			if spec.Default == nil {
				continue
			}
			value = spec.Default
		}

		if spec.Type != "" && !defaultMatchesType(value, spec.Type) {
			addError(field, fmt.Sprintf("value does not match declared type %s", spec.Type))
			continue
		}
		if spec.Pattern != "" {
			s, ok := value.(string)
			if !ok {
				addError(field, "pattern constraints apply to string inputs only")
				continue
			}
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				addError(field, "invalid validation pattern")
				continue
			}
			if !re.MatchString(s) {
				addError(field, "value does not match the validation pattern")
				continue
			}
		}
		bound[spec.Name] = value
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return bound, nil
}
