package expression

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{ ... }} interpolation sites.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Interpolate resolves every {{ expr }} placeholder in s against the
// namespace. Resolution is strict: an unresolvable or malformed placeholder
// is an error, never echoed back into the output.
func Interpolate(s string, ns *Namespace) (string, error) {
	eval := NewEvaluator()
	var firstErr error

	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := strings.TrimSpace(match[2 : len(match)-2])
		val, err := evalPlaceholder(eval, inner, ns)
		if err != nil {
			firstErr = err
			return match
		}
		return fmt.Sprintf("%v", val)
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// InterpolateValue resolves placeholders recursively through maps, slices,
// and strings. A string consisting of exactly one placeholder yields the
// referenced value with its original type preserved.
func InterpolateValue(v any, ns *Namespace) (any, error) {
	switch val := v.(type) {
	case string:
		if expr, ok := solePlaceholder(val); ok {
			return evalPlaceholder(NewEvaluator(), expr, ns)
		}
		return Interpolate(val, ns)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := InterpolateValue(item, ns)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := InterpolateValue(item, ns)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// solePlaceholder reports whether s is exactly one {{ expr }} and returns
// the inner expression.
func solePlaceholder(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	loc := placeholderPattern.FindStringIndex(trimmed)
	if loc == nil || loc[0] != 0 || loc[1] != len(trimmed) {
		return "", false
	}
	return strings.TrimSpace(trimmed[2 : len(trimmed)-2]), true
}

func evalPlaceholder(eval *Evaluator, expr string, ns *Namespace) (any, error) {
	ast, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return eval.EvaluateValue(ast, ns)
}

// ScanReferences returns every namespace path referenced by the placeholders
// in s. Malformed placeholders contribute a non-nil error; well-formed ones
// still contribute their references so validation can report everything.
func ScanReferences(s string) ([]string, error) {
	var refs []string
	var firstErr error
	seen := make(map[string]bool)

	for _, match := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		ast, err := Parse(strings.TrimSpace(match[1]))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, ref := range ast.References() {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs, firstErr
}

// HasPlaceholders reports whether s contains any interpolation sites.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}
