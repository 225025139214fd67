package expression

// NodeType represents the type of an AST node.
type NodeType int

const (
	NodeTypeLiteral    NodeType = iota // Literal value (string, int, float, bool)
	NodeTypeVariable                   // Namespace path reference
	NodeTypeCall                       // Whitelisted function call
	NodeTypeComparison                 // Comparison expression
	NodeTypeLogical                    // Logical expression (AND, OR)
	NodeTypeNot                        // NOT expression
)

// Node represents a node in the AST.
type Node interface {
	nodeType() NodeType
}

// LiteralNode represents a literal value.
type LiteralNode struct {
	Value any // string, int64, float64, or bool
}

func (n *LiteralNode) nodeType() NodeType { return NodeTypeLiteral }

// VariableNode represents a dotted namespace path reference
// (e.g. "inputs.coverage", "steps.run-tests.outputs.coverage").
type VariableNode struct {
	Path string
}

func (n *VariableNode) nodeType() NodeType { return NodeTypeVariable }

// CallNode represents a call to a whitelisted pure function.
type CallNode struct {
	Name string
	Args []Node
}

func (n *CallNode) nodeType() NodeType { return NodeTypeCall }

// ComparisonNode represents a comparison expression.
type ComparisonNode struct {
	Left     Node
	Operator string // ==, !=, <, >, <=, >=
	Right    Node
}

func (n *ComparisonNode) nodeType() NodeType { return NodeTypeComparison }

// LogicalNode represents a logical expression (AND, OR).
type LogicalNode struct {
	Left     Node
	Operator string // AND, OR
	Right    Node
}

func (n *LogicalNode) nodeType() NodeType { return NodeTypeLogical }

// NotNode represents a NOT expression.
type NotNode struct {
	Operand Node
}

func (n *NotNode) nodeType() NodeType { return NodeTypeNot }

// AST wraps the root node of a parsed expression.
type AST struct {
	Root Node
}

// References returns every namespace path referenced by the expression, in
// first-appearance order. The parser and the dependency inference both rely
// on this scan.
func (a *AST) References() []string {
	var refs []string
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case *VariableNode:
			if !seen[node.Path] {
				seen[node.Path] = true
				refs = append(refs, node.Path)
			}
		case *CallNode:
			for _, arg := range node.Args {
				walk(arg)
			}
		case *ComparisonNode:
			walk(node.Left)
			walk(node.Right)
		case *LogicalNode:
			walk(node.Left)
			walk(node.Right)
		case *NotNode:
			walk(node.Operand)
		}
	}
	if a != nil && a.Root != nil {
		walk(a.Root)
	}
	return refs
}
