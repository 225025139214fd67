package expression

import (
	"strconv"
	"strings"
)

// Parser parses expression strings into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// Parse parses the expression and returns the AST.
func (p *Parser) Parse() (*AST, error) {
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.curToken.Type != TokenEOF {
		return nil, NewParseError(p.curToken.Pos, "end of expression", p.curToken.Literal)
	}

	return &AST{Root: node}, nil
}

// parseExpression parses an expression (OR has the lowest precedence).
func (p *Parser) parseExpression() (Node, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenOR {
		p.nextToken()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "OR", Right: right}
	}

	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenAND {
		p.nextToken()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "AND", Right: right}
	}

	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.curToken.Type == TokenNOT {
		p.nextToken()
		operand, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	}

	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if isComparisonOperator(p.curToken.Type) {
		op := p.curToken.Literal
		p.nextToken()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &ComparisonNode{Left: left, Operator: op, Right: right}, nil
	}

	return left, nil
}

// parsePrimary parses literals, path references, function calls, and
// parenthesized expressions.
func (p *Parser) parsePrimary() (Node, error) {
	switch p.curToken.Type {
	case TokenLParen:
		p.nextToken() // consume '('
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.curToken.Type != TokenRParen {
			return nil, NewParseError(p.curToken.Pos, ")", p.curToken.Literal)
		}
		p.nextToken() // consume ')'
		return expr, nil

	case TokenInt:
		val, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return nil, NewParseError(p.curToken.Pos, "integer", p.curToken.Literal)
		}
		node := &LiteralNode{Value: val}
		p.nextToken()
		return node, nil

	case TokenFloat:
		val, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			return nil, NewParseError(p.curToken.Pos, "float", p.curToken.Literal)
		}
		node := &LiteralNode{Value: val}
		p.nextToken()
		return node, nil

	case TokenString:
		node := &LiteralNode{Value: p.curToken.Literal}
		p.nextToken()
		return node, nil

	case TokenBool:
		node := &LiteralNode{Value: strings.EqualFold(p.curToken.Literal, "true")}
		p.nextToken()
		return node, nil

	case TokenIdent:
		name := p.curToken.Literal
		if p.peekToken.Type == TokenLParen {
			return p.parseCall(name)
		}
		if err := validatePath(name, p.curToken.Pos); err != nil {
			return nil, err
		}
		node := &VariableNode{Path: name}
		p.nextToken()
		return node, nil

	case TokenEOF:
		return nil, NewParseError(p.curToken.Pos, "expression", "end of input")

	default:
		return nil, NewParseError(p.curToken.Pos, "expression", p.curToken.Literal)
	}
}

// parseCall parses a function call. The function name must be a plain
// identifier; dotted names are never callable.
func (p *Parser) parseCall(name string) (Node, error) {
	if strings.Contains(name, ".") {
		return nil, NewParseError(p.curToken.Pos, "function name", name)
	}
	p.nextToken() // move to '('
	p.nextToken() // consume '('

	call := &CallNode{Name: name}
	if p.curToken.Type == TokenRParen {
		p.nextToken() // consume ')'
		return call, nil
	}

	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		if p.curToken.Type == TokenComma {
			p.nextToken()
			continue
		}
		break
	}

	if p.curToken.Type != TokenRParen {
		return nil, NewParseError(p.curToken.Pos, ")", p.curToken.Literal)
	}
	p.nextToken() // consume ')'
	return call, nil
}

// validatePath rejects dotted paths with empty segments, such as a
// trailing or doubled dot.
func validatePath(path string, pos int) error {
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return NewParseError(pos, "path segment", path)
		}
	}
	return nil
}

// isComparisonOperator returns true if the token is a comparison operator.
func isComparisonOperator(t TokenType) bool {
	switch t {
	case TokenEQ, TokenNE, TokenLT, TokenGT, TokenLE, TokenGE:
		return true
	default:
		return false
	}
}

// Parse is a convenience function to parse an expression string.
func Parse(input string) (*AST, error) {
	return NewParser(input).Parse()
}
