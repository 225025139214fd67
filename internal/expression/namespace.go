package expression

import (
	"strconv"
	"strings"
)

// Namespace roots exposed to expressions. Nothing else is reachable: the
// evaluator resolves paths against these roots only, walking plain map and
// slice data. There is no reflection, no method access, and no way for an
// expression to name an engine-internal object.
const (
	RootInputs    = "inputs"
	RootSteps     = "steps"
	RootWorkflow  = "workflow"
	RootExecution = "execution"
)

// AllowedRoot reports whether name is one of the fixed namespace roots.
func AllowedRoot(name string) bool {
	switch name {
	case RootInputs, RootSteps, RootWorkflow, RootExecution:
		return true
	}
	return false
}

// Namespace is the fixed, enumerated set of data an expression may read.
type Namespace struct {
	roots map[string]map[string]any
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{roots: make(map[string]map[string]any)}
}

// Bind attaches a data document under one of the fixed roots. Binding an
// unknown root is a programming error and is ignored.
func (n *Namespace) Bind(root string, data map[string]any) *Namespace {
	if AllowedRoot(root) {
		n.roots[root] = data
	}
	return n
}

// Resolve walks a dotted path from its root. Numeric segments index slices.
// Dunder-style segments are rejected outright regardless of the data shape.
func (n *Namespace) Resolve(path string) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, NewReferenceError(path, "empty path")
	}
	for _, part := range parts {
		if part == "" {
			return nil, NewReferenceError(path, "empty path segment")
		}
		if strings.HasPrefix(part, "__") {
			return nil, NewReferenceError(path, "segment outside the exposed namespace")
		}
	}

	root, ok := n.roots[parts[0]]
	if !ok {
		if AllowedRoot(parts[0]) {
			return nil, NewReferenceError(path, "root is not bound")
		}
		return nil, NewReferenceError(path, "symbol outside the exposed namespace")
	}
	if len(parts) == 1 {
		return root, nil
	}

	var current any = root
	for _, part := range parts[1:] {
		next, err := descend(current, part)
		if err != nil {
			return nil, NewReferenceError(path, err.Error())
		}
		current = next
	}
	return current, nil
}

// descend resolves one path segment against map or slice data only.
func descend(v any, segment string) (any, error) {
	switch data := v.(type) {
	case map[string]any:
		val, exists := data[segment]
		if !exists {
			return nil, NewReferenceError(segment, "field not found")
		}
		return val, nil
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil {
			return nil, NewReferenceError(segment, "list requires a numeric index")
		}
		if idx < 0 || idx >= len(data) {
			return nil, NewReferenceError(segment, "index out of range")
		}
		return data[idx], nil
	case nil:
		return nil, NewReferenceError(segment, "cannot descend into nil")
	default:
		return nil, NewReferenceError(segment, "cannot descend into scalar value")
	}
}
