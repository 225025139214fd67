package expression

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// BuiltinFunc is a whitelisted pure function callable from expressions.
type BuiltinFunc func(args []any) (any, error)

// builtins is the complete, closed set of callable functions. Expressions
// cannot define, import, or otherwise obtain callables beyond this table.
var builtins = map[string]BuiltinFunc{
	"len":      fnLen,
	"default":  fnDefault,
	"coalesce": fnCoalesce,
	"hash":     fnHash,
	"contains": fnContains,
	"upper":    fnUpper,
	"lower":    fnLower,
	"trim":     fnTrim,
	"min":      fnMin,
	"max":      fnMax,
}

// IsBuiltin reports whether name is a whitelisted function.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Builtins returns the sorted-by-nothing list of whitelisted function names.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

func fnLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError("len expects 1 argument", nil)
	}
	switch v := args[0].(type) {
	case string:
		return int64(len(v)), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	case nil:
		return int64(0), nil
	default:
		return nil, NewTypeMismatchError("string, list, or map", fmt.Sprintf("%T", v))
	}
}

// fnDefault returns the first argument unless it is nil or the empty string.
func fnDefault(args []any) (any, error) {
	if len(args) != 2 {
		return nil, NewEvaluationError("default expects 2 arguments", nil)
	}
	if args[0] == nil || args[0] == "" {
		return args[1], nil
	}
	return args[0], nil
}

func fnCoalesce(args []any) (any, error) {
	for _, a := range args {
		if a != nil && a != "" {
			return a, nil
		}
	}
	return nil, nil
}

func fnHash(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError("hash expects 1 argument", nil)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", args[0])))
	return hex.EncodeToString(sum[:]), nil
}

func fnContains(args []any) (any, error) {
	if len(args) != 2 {
		return nil, NewEvaluationError("contains expects 2 arguments", nil)
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, NewTypeMismatchError("string", fmt.Sprintf("%T", args[0]))
	}
	sub, ok := args[1].(string)
	if !ok {
		return nil, NewTypeMismatchError("string", fmt.Sprintf("%T", args[1]))
	}
	return strings.Contains(s, sub), nil
}

func fnUpper(args []any) (any, error) {
	return stringFn("upper", args, strings.ToUpper)
}

func fnLower(args []any) (any, error) {
	return stringFn("lower", args, strings.ToLower)
}

func fnTrim(args []any) (any, error) {
	return stringFn("trim", args, strings.TrimSpace)
}

func stringFn(name string, args []any, fn func(string) string) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(name+" expects 1 argument", nil)
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, NewTypeMismatchError("string", fmt.Sprintf("%T", args[0]))
	}
	return fn(s), nil
}

func fnMin(args []any) (any, error) {
	return pickNumeric("min", args, func(a, b float64) bool { return a < b })
}

func fnMax(args []any) (any, error) {
	return pickNumeric("max", args, func(a, b float64) bool { return a > b })
}

func pickNumeric(name string, args []any, better func(a, b float64) bool) (any, error) {
	if len(args) == 0 {
		return nil, NewEvaluationError(name+" expects at least 1 argument", nil)
	}
	best, ok := toFloat64(args[0])
	if !ok {
		return nil, NewTypeMismatchError("number", fmt.Sprintf("%T", args[0]))
	}
	for _, a := range args[1:] {
		v, ok := toFloat64(a)
		if !ok {
			return nil, NewTypeMismatchError("number", fmt.Sprintf("%T", a))
		}
		if better(v, best) {
			best = v
		}
	}
	return best, nil
}
