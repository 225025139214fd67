package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluator evaluates parsed expressions against a Namespace. Evaluation is
// side-effect-free and idempotent: the same AST and namespace always produce
// the same value, so the engine may evaluate once for cache-key derivation
// and again for execution.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates an AST to a boolean.
func (e *Evaluator) Evaluate(ast *AST, ns *Namespace) (bool, error) {
	val, err := e.EvaluateValue(ast, ns)
	if err != nil {
		return false, err
	}
	return toBool(val)
}

// EvaluateValue evaluates an AST to its raw value.
func (e *Evaluator) EvaluateValue(ast *AST, ns *Namespace) (any, error) {
	if ast == nil || ast.Root == nil {
		return nil, NewEvaluationError("nil AST", nil)
	}
	return e.evaluateNode(ast.Root, ns)
}

// EvaluateString parses and evaluates an expression string to a boolean.
func (e *Evaluator) EvaluateString(expr string, ns *Namespace) (bool, error) {
	ast, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(ast, ns)
}

func (e *Evaluator) evaluateNode(node Node, ns *Namespace) (any, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil

	case *VariableNode:
		return ns.Resolve(n.Path)

	case *CallNode:
		return e.evaluateCall(n, ns)

	case *ComparisonNode:
		return e.evaluateComparison(n, ns)

	case *LogicalNode:
		return e.evaluateLogical(n, ns)

	case *NotNode:
		val, err := e.evaluateNode(n.Operand, ns)
		if err != nil {
			return nil, err
		}
		b, err := toBool(val)
		if err != nil {
			return nil, err
		}
		return !b, nil

	default:
		return nil, NewEvaluationError(fmt.Sprintf("unknown node type: %T", node), nil)
	}
}

func (e *Evaluator) evaluateCall(node *CallNode, ns *Namespace) (any, error) {
	fn, ok := builtins[node.Name]
	if !ok {
		return nil, NewReferenceError(node.Name, "function is not whitelisted")
	}
	args := make([]any, len(node.Args))
	for i, argNode := range node.Args {
		val, err := e.evaluateNode(argNode, ns)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return fn(args)
}

func (e *Evaluator) evaluateComparison(node *ComparisonNode, ns *Namespace) (bool, error) {
	left, err := e.evaluateNode(node.Left, ns)
	if err != nil {
		return false, err
	}
	right, err := e.evaluateNode(node.Right, ns)
	if err != nil {
		return false, err
	}
	return compare(left, right, node.Operator)
}

// evaluateLogical evaluates AND/OR with short-circuiting.
func (e *Evaluator) evaluateLogical(node *LogicalNode, ns *Namespace) (bool, error) {
	leftVal, err := e.evaluateNode(node.Left, ns)
	if err != nil {
		return false, err
	}
	leftBool, err := toBool(leftVal)
	if err != nil {
		return false, err
	}

	switch node.Operator {
	case "AND":
		if !leftBool {
			return false, nil
		}
	case "OR":
		if leftBool {
			return true, nil
		}
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown logical operator: %s", node.Operator), nil)
	}

	rightVal, err := e.evaluateNode(node.Right, ns)
	if err != nil {
		return false, err
	}
	return toBool(rightVal)
}

// compare compares two values with the given operator.
func compare(left, right any, op string) (bool, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == right, nil
		case "!=":
			return left != right, nil
		default:
			return false, NewEvaluationError(fmt.Sprintf("cannot compare nil with operator %s", op), nil)
		}
	}

	// Numeric comparison when both sides convert.
	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	if leftIsNum && rightIsNum {
		return compareNumbers(leftNum, rightNum, op)
	}

	leftStr := fmt.Sprintf("%v", left)
	rightStr := fmt.Sprintf("%v", right)

	switch op {
	case "==":
		return leftStr == rightStr, nil
	case "!=":
		return leftStr != rightStr, nil
	case "<":
		return leftStr < rightStr, nil
	case ">":
		return leftStr > rightStr, nil
	case "<=":
		return leftStr <= rightStr, nil
	case ">=":
		return leftStr >= rightStr, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown comparison operator: %s", op), nil)
	}
}

func compareNumbers(left, right float64, op string) (bool, error) {
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "<=":
		return left <= right, nil
	case ">=":
		return left >= right, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown comparison operator: %s", op), nil)
	}
}

// toFloat64 converts a value to float64 if possible.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// toBool converts a value to bool.
func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int:
		return val != 0, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case string:
		lower := strings.ToLower(val)
		if lower == "true" || lower == "1" {
			return true, nil
		}
		if lower == "false" || lower == "0" || lower == "" {
			return false, nil
		}
		return false, NewTypeMismatchError("bool", "string")
	case nil:
		return false, nil
	default:
		return false, NewTypeMismatchError("bool", fmt.Sprintf("%T", v))
	}
}

// Evaluate is a convenience function to evaluate an expression string.
func Evaluate(expr string, ns *Namespace) (bool, error) {
	return NewEvaluator().EvaluateString(expr, ns)
}
