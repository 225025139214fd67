package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ValidExpressions(t *testing.T) {
	tests := []string{
		"true",
		"inputs.branch == 'main'",
		"steps.run-tests.exit_code == 0",
		"a > 1 AND b < 2",
		"a > 1 && b < 2 || c == 3",
		"NOT (x == y)",
		"!flag",
		"len(inputs.name) > 0",
		"contains(steps.build.stdout, 'ok') AND inputs.deploy",
		"coalesce(a, b, 'fallback') == 'fallback'",
		"coverage >= 80.5",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			ast, err := Parse(expr)
			require.NoError(t, err)
			require.NotNil(t, ast)
			require.NotNil(t, ast.Root)
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: ""},
		{name: "unclosed paren", expr: "(a == b"},
		{name: "dangling operator", expr: "a =="},
		{name: "double operator", expr: "a == == b"},
		{name: "unclosed call", expr: "len(a"},
		{name: "dotted function name", expr: "os.system('ls')"},
		{name: "trailing garbage", expr: "a == b extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
		})
	}
}

func TestParser_Precedence(t *testing.T) {
	// OR binds looser than AND: a OR b AND c parses as a OR (b AND c).
	ast, err := Parse("a == 1 OR b == 2 AND c == 3")
	require.NoError(t, err)

	root, ok := ast.Root.(*LogicalNode)
	require.True(t, ok)
	assert.Equal(t, "OR", root.Operator)

	right, ok := root.Right.(*LogicalNode)
	require.True(t, ok)
	assert.Equal(t, "AND", right.Operator)
}

func TestParser_DashedIdentifiers(t *testing.T) {
	ast, err := Parse("steps.run-tests.outputs.coverage >= 80")
	require.NoError(t, err)

	cmp, ok := ast.Root.(*ComparisonNode)
	require.True(t, ok)

	v, ok := cmp.Left.(*VariableNode)
	require.True(t, ok)
	assert.Equal(t, "steps.run-tests.outputs.coverage", v.Path)
}

func TestAST_References(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{
			expr: "steps.build.exit_code == 0 AND steps.test.outputs.rate > inputs.threshold",
			want: []string{"steps.build.exit_code", "steps.test.outputs.rate", "inputs.threshold"},
		},
		{
			expr: "len(inputs.name) > 0",
			want: []string{"inputs.name"},
		},
		{
			expr: "inputs.a == inputs.a",
			want: []string{"inputs.a"},
		},
		{
			expr: "true",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ast, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ast.References())
		})
	}
}

func TestLexer_Operators(t *testing.T) {
	lexer := NewLexer("a && b || !c != d")
	var types []TokenType
	for {
		tok := lexer.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenIdent, TokenAND, TokenIdent, TokenOR,
		TokenNOT, TokenIdent, TokenNE, TokenIdent,
	}, types)
}
