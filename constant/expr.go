package constant

import (
	"fmt"
	"math/big"
	"strings"
)

// NodeKind tags an expression node.
type NodeKind int

const (
	// NodeConst is a named constant leaf.
	NodeConst NodeKind = iota
	// NodeLit is an exact rational literal leaf.
	NodeLit
	// NodeBinary applies Op to Left and Right.
	NodeBinary
)

// Node is one node of a parsed constant expression. Exactly the fields
// implied by Kind are set. Nodes are immutable after parsing.
type Node struct {
	Kind  NodeKind
	Const Constant
	Lit   *big.Rat
	Op    byte // one of + - * /
	Left  *Node
	Right *Node
}

// String renders the expression in canonical form: lowercase constant
// names, minimal rational literals, and explicit parentheses around
// every binary operation.
func (n *Node) String() string {
	switch n.Kind {
	case NodeConst:
		return n.Const.String()
	case NodeLit:
		if n.Lit.IsInt() {
			return n.Lit.Num().String()
		}
		return n.Lit.RatString()
	case NodeBinary:
		return fmt.Sprintf("(%s %c %s)", n.Left.String(), n.Op, n.Right.String())
	}
	return "?"
}

// Depth returns the maximum nesting depth, used for per-node precision
// propagation during evaluation.
func (n *Node) Depth() int {
	if n.Kind != NodeBinary {
		return 1
	}
	l, r := n.Left.Depth(), n.Right.Depth()
	if r > l {
		l = r
	}
	return l + 1
}

// ParseExpr parses the fixed expression grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = constant-name | number | "(" expr ")" | "-" factor
//
// Numbers are decimal integers or integer/integer fractions written
// with "/" inside parentheses-free positions, e.g. "3", "22/7",
// "1.5" (parsed exactly as 3/2). A bare constant name parses to a
// single NodeConst leaf.
func ParseExpr(input string) (*Node, error) {
	p := &exprParser{src: input}
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("%w: trailing input at %q", ErrInvalidExpression, p.rest())
	}
	return n, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) eof() bool { return p.pos >= len(p.src) }
func (p *exprParser) peek() byte { return p.src[p.pos] }
func (p *exprParser) rest() string { return p.src[p.pos:] }
func (p *exprParser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *exprParser) parseExpr() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.eof() || (p.peek() != '+' && p.peek() != '-') {
			return left, nil
		}
		op := p.peek()
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeBinary, Op: op, Left: left, Right: right}
	}
}

func (p *exprParser) parseTerm() (*Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.eof() || (p.peek() != '*' && p.peek() != '/') {
			return left, nil
		}
		op := p.peek()
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeBinary, Op: op, Left: left, Right: right}
	}
}

func (p *exprParser) parseFactor() (*Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrInvalidExpression)
	}
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		p.pos++
		return n, nil
	case c == '-':
		p.pos++
		n, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		neg := &Node{Kind: NodeLit, Lit: big.NewRat(-1, 1)}
		return &Node{Kind: NodeBinary, Op: '*', Left: neg, Right: n}, nil
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case isNameByte(c):
		return p.parseName()
	}
	return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, string(p.peek()))
}

func (p *exprParser) parseNumber() (*Node, error) {
	start := p.pos
	seenDot := false
	for !p.eof() {
		c := p.peek()
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	text := p.src[start:p.pos]
	r := new(big.Rat)
	if _, ok := r.SetString(text); !ok {
		return nil, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, text)
	}
	return &Node{Kind: NodeLit, Lit: r}, nil
}

func (p *exprParser) parseName() (*Node, error) {
	start := p.pos
	for !p.eof() && (isNameByte(p.peek()) || (p.peek() >= '0' && p.peek() <= '9')) {
		p.pos++
	}
	name := strings.ToLower(p.src[start:p.pos])
	c, err := Parse(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown name %q", ErrInvalidExpression, name)
	}
	return &Node{Kind: NodeConst, Const: c}, nil
}

func isNameByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
