package formula

import (
	"fmt"
	"strings"
)

const (
	// MaxFormulaLength is the maximum accepted length of a formula string.
	MaxFormulaLength = 1024

	// MaxNestingDepth bounds parser recursion so pathological input cannot
	// exhaust the stack.
	MaxNestingDepth = 64
)

// Parser is a recursive descent parser for policy formulas. The additive,
// multiplicative and conditional levels parse right-recursively and are
// re-associated afterwards by the prioritize rotation.
type Parser struct {
	source string
	tokens []Token
	pos    int
	depth  int
}

// ParseFormula parses a complete token stream against the source text it
// was scanned from. A formula may be either a value-producing arithmetic
// expression or a logical/ternary expression, so three top-level
// productions are tried in order: additive, ternary, then bare relational.
// The first one that consumes every token wins; if none does, the result
// is a SyntaxError carrying the offending position.
func ParseFormula(tokens []Token, source string) (*Node, error) {
	p := &Parser{source: source, tokens: tokens}

	node, err := p.parseAdditive()
	if err == nil && p.atEnd() {
		return node, nil
	}

	p.reset()
	node, err = p.parseTernary()
	if err == nil && p.atEnd() {
		return node, nil
	}

	p.reset()
	node, err = p.parseRelational()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		tok := p.tokens[p.pos]
		return nil, &SyntaxError{
			Pos: tok.Pos,
			Msg: fmt.Sprintf("unexpected token %s (%q)", tok.Type, tok.Text(source)),
		}
	}
	return node, nil
}

// prioritize re-links a right-recursive parse into a correctly associated
// tree using the integer precedence on each node's Operation. lhs is a
// binary operator node with only its left child set; rhs is the parsed
// remainder of the same level. Equal precedence splices lhs down rhs's
// left spine so operators of equal rank evaluate left to right; anything
// else (a tighter-binding subtree, a terminal, a group) binds as lhs's
// right child with lhs staying root. Each step reparents at most three
// nodes.
func prioritize(lhs, rhs *Node) *Node {
	if rhs.Left != nil && rhs.Right != nil && lhs.Op.precedence() == rhs.Op.precedence() {
		rhs.Left = prioritize(lhs, rhs.Left)
		return rhs
	}
	lhs.Right = rhs
	return lhs
}

// parseTernary parses conditionalOr ('?' additive ':' additive)?. The
// branches hang off an ALTERNATIVE node on the right: true branch left,
// false branch right.
func (p *Parser) parseTernary() (*Node, error) {
	cond, err := p.parseConditionalOr()
	if err != nil {
		return nil, err
	}
	if !p.is(TokenQuestion) {
		return cond, nil
	}
	p.advance()

	truthy, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	falsy, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	alt := &Node{Op: OpAlternative, Left: truthy, Right: falsy}
	return &Node{Op: OpTernary, Left: cond, Right: alt}, nil
}

func (p *Parser) parseConditionalOr() (*Node, error) {
	lhs, err := p.parseConditionalAnd()
	if err != nil {
		return nil, err
	}
	if !p.is(TokenOr) {
		return lhs, nil
	}
	p.advance()
	rhs, err := p.parseConditionalOr()
	if err != nil {
		return nil, err
	}
	return prioritize(&Node{Op: OpOr, Left: lhs}, rhs), nil
}

func (p *Parser) parseConditionalAnd() (*Node, error) {
	lhs, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	if !p.is(TokenAnd) {
		return lhs, nil
	}
	p.advance()
	rhs, err := p.parseConditionalAnd()
	if err != nil {
		return nil, err
	}
	return prioritize(&Node{Op: OpAnd, Left: lhs}, rhs), nil
}

// parseRelational parses additive ((LIKE|EQ|NEQ|LT|LTE|GT|GTE) additive)?.
// At most one comparison per level; chained comparisons are a syntax error
// surfaced by the unconsumed-token check at the top level.
func (p *Parser) parseRelational() (*Node, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	tok, ok := p.current()
	if !ok {
		return lhs, nil
	}
	var op Operation
	switch tok.Type {
	case TokenLike:
		op = OpLike
	case TokenEq:
		op = OpEq
	case TokenNeq:
		op = OpNeq
	case TokenLt:
		op = OpLt
	case TokenLte:
		op = OpLte
	case TokenGt:
		op = OpGt
	case TokenGte:
		op = OpGte
	default:
		return lhs, nil
	}
	p.advance()

	rhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &Node{Op: op, Left: lhs, Right: rhs}, nil
}

func (p *Parser) parseAdditive() (*Node, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	tok, ok := p.current()
	if !ok {
		return lhs, nil
	}
	var op Operation
	switch tok.Type {
	case TokenPlus:
		op = OpPlus
	case TokenMinus:
		op = OpMinus
	default:
		return lhs, nil
	}
	p.advance()

	rhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return prioritize(&Node{Op: op, Left: lhs}, rhs), nil
}

func (p *Parser) parseMultiplicative() (*Node, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	tok, ok := p.current()
	if !ok {
		return lhs, nil
	}
	var op Operation
	switch tok.Type {
	case TokenMul:
		op = OpMul
	case TokenDiv:
		op = OpDiv
	case TokenMod:
		op = OpMod
	default:
		return lhs, nil
	}
	p.advance()

	rhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	return prioritize(&Node{Op: op, Left: lhs}, rhs), nil
}

// parseUnary parses (NOT|PLUS|MINUS) primary | primary. The operand sits
// on the left child; nested unary operators require parentheses.
func (p *Parser) parseUnary() (*Node, error) {
	tok, ok := p.current()
	if ok {
		var op Operation
		switch tok.Type {
		case TokenNot:
			op = OpNot
		case TokenPlus:
			op = OpUnaryPlus
		case TokenMinus:
			op = OpUnaryMinus
		default:
			return p.parsePrimary()
		}
		p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Node{Op: op, Left: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (*Node, error) {
	if p.depth >= MaxNestingDepth {
		return nil, &SyntaxError{Pos: p.errPos(), Msg: "formula nesting too deep"}
	}
	p.depth++
	defer func() { p.depth-- }()

	tok, ok := p.current()
	if !ok {
		return nil, &SyntaxError{Pos: p.errPos(), Msg: "unexpected end of formula"}
	}

	switch tok.Type {
	case TokenLParen:
		p.advance()
		inner, err := p.parseConditionalOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &Node{Op: OpGroup, Left: inner}, nil

	case TokenFunction:
		return p.parseFunction(tok)

	case TokenAttribute:
		return p.parseAttributeRef(tok)

	case TokenNumber:
		p.advance()
		return terminal(TerminalNumber, tok.Text(p.source)), nil

	case TokenString:
		p.advance()
		return terminal(TerminalString, stripQuotes(tok.Text(p.source))), nil

	case TokenIdent:
		p.advance()
		return terminal(TerminalIdent, tok.Text(p.source)), nil

	default:
		return nil, &SyntaxError{
			Pos: tok.Pos,
			Msg: fmt.Sprintf("unexpected token %s (%q)", tok.Type, tok.Text(p.source)),
		}
	}
}

// parseFunction parses the remainder of a call whose FUNCTION token (name
// plus opening paren) is already current. Arguments are full conditionalOr
// expressions separated by commas, chained onto the node's right side as
// GROUP cells. Calls to lower/upper with a single argument parse directly
// to their prefix operations.
func (p *Parser) parseFunction(tok Token) (*Node, error) {
	p.advance()
	name := strings.TrimSuffix(tok.Text(p.source), "(")

	var args []*Node
	if !p.is(TokenRParen) {
		for {
			arg, err := p.parseConditionalOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.is(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if len(args) == 1 {
		switch {
		case strings.EqualFold(name, "LOWER"):
			return &Node{Op: OpLower, Left: args[0]}, nil
		case strings.EqualFold(name, "UPPER"):
			return &Node{Op: OpUpper, Left: args[0]}, nil
		}
	}

	node := &Node{Op: OpFunction, Left: terminal(TerminalIdent, name)}
	var tail *Node
	for _, arg := range args {
		cell := &Node{Op: OpGroup, Left: arg}
		if tail == nil {
			node.Right = cell
		} else {
			tail.Right = cell
		}
		tail = cell
	}
	return node, nil
}

// parseAttributeRef parses '$'? '$(' IDENT ')'. The ATTRIBUTE token carries
// the whole marker; the count of dollars before the "$(" selects the
// terminal type: none for the in-process value, one for the current value.
func (p *Parser) parseAttributeRef(tok Token) (*Node, error) {
	p.advance()
	text := tok.Text(p.source)
	if !strings.HasSuffix(text, "(") {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "malformed attribute marker"}
	}

	var tt TerminalType
	switch dollars := len(text) - 2; dollars {
	case 0:
		tt = TerminalInProcessAttribute
	case 1:
		tt = TerminalCurrentAttribute
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "too many '$' in attribute reference"}
	}

	nameTok, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return terminal(tt, nameTok.Text(p.source)), nil
}

func terminal(tt TerminalType, text string) *Node {
	return &Node{Op: OpTerminal, Term: &Terminal{Type: tt, Text: text}}
}

// stripQuotes removes the surrounding quotes of a STRING token span. The
// inner text is kept verbatim, backslash escapes included, so LIKE
// patterns see their escapes.
func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	if strings.HasSuffix(s, `"`) {
		s = s[:len(s)-1]
	}
	return s
}

func (p *Parser) reset() {
	p.pos = 0
	p.depth = 0
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *Parser) current() (Token, bool) {
	if p.atEnd() {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *Parser) is(tt TokenType) bool {
	tok, ok := p.current()
	return ok && tok.Type == tt
}

func (p *Parser) advance() {
	p.pos++
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok, ok := p.current()
	if !ok {
		return Token{}, &SyntaxError{
			Pos: p.errPos(),
			Msg: fmt.Sprintf("expected %s, got end of formula", tt),
		}
	}
	if tok.Type != tt {
		return Token{}, &SyntaxError{
			Pos: tok.Pos,
			Msg: fmt.Sprintf("expected %s, got %s (%q)", tt, tok.Type, tok.Text(p.source)),
		}
	}
	p.advance()
	return tok, nil
}

// errPos is the position reported when the stream ends prematurely.
func (p *Parser) errPos() int {
	if p.atEnd() {
		return len(p.source)
	}
	return p.tokens[p.pos].Pos
}
