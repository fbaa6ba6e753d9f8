package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Condition is a parsed boolean predicate over a fixed set of named
// variables. Conditions are parsed once at configuration load and evaluated
// by a restricted interpreter: no I/O, no attribute access, no code
// execution beyond comparisons and boolean operators.
type Condition struct {
	src  string
	root node
}

// Source returns the original condition expression.
func (c *Condition) Source() string { return c.src }

// Eval evaluates the condition against a variable context.
func (c *Condition) Eval(ctx Context) (bool, error) {
	if c == nil || c.root == nil {
		return false, fmt.Errorf("condition: not parsed")
	}
	b, err := evalBool(c.root, ctx)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.src, err)
	}
	return b, nil
}

// Context supplies the variable values a condition may reference.
type Context map[string]Value

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	kindNumber ValueKind = iota
	kindString
	kindBool
)

// Value is a tagged variant: number, string, or bool.
type Value struct {
	kind ValueKind
	n    float64
	s    string
	b    bool
}

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{kind: kindNumber, n: n} }

// String wraps a string as a Value.
func String(s string) Value { return Value{kind: kindString, s: s} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

func (v Value) kindName() string {
	switch v.kind {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	}
	return "unknown"
}

// Parse compiles a condition expression. Grammar:
//
//	expr    := and { "or" and }
//	and     := unary { "and" unary }
//	unary   := "not" unary | primary
//	primary := "(" expr ")" | operand [ cmpop operand ]
//	operand := identifier | number | 'string' | true | false
//	cmpop   := ">=" | ">" | "<=" | "<" | "==" | "!="
func Parse(src string) (*Condition, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("condition %q: unexpected %q", src, p.peek().text)
	}
	return &Condition{src: src, root: root}, nil
}

// MustParse is Parse for the built-in rule set, whose conditions are known
// to be valid.
func MustParse(src string) *Condition {
	c, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return c
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokBool
	tokAnd
	tokOr
	tokNot
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	b    bool
}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokString, text: src[i+1 : j]})
			i = j + 1
		case c == '>' || c == '<' || c == '=' || c == '!':
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("invalid operator %q", op)
			}
			tokens = append(tokens, token{kind: tokOp, text: op})
			i++
		case c >= '0' && c <= '9' || c == '.' || c == '-' && i+1 < len(src) && (src[i+1] >= '0' && src[i+1] <= '9' || src[i+1] == '.'):
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", src[i:j])
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[i:j], num: n})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i + 1
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			word := src[i:j]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{kind: tokAnd, text: word})
			case "or":
				tokens = append(tokens, token{kind: tokOr, text: word})
			case "not":
				tokens = append(tokens, token{kind: tokNot, text: word})
			case "true":
				tokens = append(tokens, token{kind: tokBool, text: word, b: true})
			case "false":
				tokens = append(tokens, token{kind: tokBool, text: word, b: false})
			default:
				tokens = append(tokens, token{kind: tokIdent, text: word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	tokens = append(tokens, token{kind: tokEOF})
	return tokens, nil
}

// --- parser ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOp {
		// A bare identifier or bool literal is a boolean test.
		return left, nil
	}
	op := p.next().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &cmpNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return &identNode{name: t.text}, nil
	case tokNumber:
		return &litNode{v: Number(t.num)}, nil
	case tokString:
		return &litNode{v: String(t.text)}, nil
	case tokBool:
		return &litNode{v: Bool(t.b)}, nil
	default:
		return nil, fmt.Errorf("expected operand, got %q", t.text)
	}
}

// --- AST evaluation ---

type node interface {
	eval(ctx Context) (Value, error)
}

type identNode struct{ name string }

func (n *identNode) eval(ctx Context) (Value, error) {
	v, ok := ctx[n.name]
	if !ok {
		return Value{}, fmt.Errorf("unknown variable %q", n.name)
	}
	return v, nil
}

type litNode struct{ v Value }

func (n *litNode) eval(Context) (Value, error) { return n.v, nil }

type andNode struct{ left, right node }

func (n *andNode) eval(ctx Context) (Value, error) {
	l, err := evalBool(n.left, ctx)
	if err != nil {
		return Value{}, err
	}
	if !l {
		return Bool(false), nil
	}
	r, err := evalBool(n.right, ctx)
	if err != nil {
		return Value{}, err
	}
	return Bool(r), nil
}

type orNode struct{ left, right node }

func (n *orNode) eval(ctx Context) (Value, error) {
	l, err := evalBool(n.left, ctx)
	if err != nil {
		return Value{}, err
	}
	if l {
		return Bool(true), nil
	}
	r, err := evalBool(n.right, ctx)
	if err != nil {
		return Value{}, err
	}
	return Bool(r), nil
}

type notNode struct{ inner node }

func (n *notNode) eval(ctx Context) (Value, error) {
	v, err := evalBool(n.inner, ctx)
	if err != nil {
		return Value{}, err
	}
	return Bool(!v), nil
}

type cmpNode struct {
	op          string
	left, right node
}

func (n *cmpNode) eval(ctx Context) (Value, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	if l.kind != r.kind {
		return Value{}, fmt.Errorf("cannot compare %s with %s", l.kindName(), r.kindName())
	}

	switch l.kind {
	case kindNumber:
		switch n.op {
		case ">":
			return Bool(l.n > r.n), nil
		case ">=":
			return Bool(l.n >= r.n), nil
		case "<":
			return Bool(l.n < r.n), nil
		case "<=":
			return Bool(l.n <= r.n), nil
		case "==":
			return Bool(l.n == r.n), nil
		case "!=":
			return Bool(l.n != r.n), nil
		}
	case kindString:
		switch n.op {
		case "==":
			return Bool(l.s == r.s), nil
		case "!=":
			return Bool(l.s != r.s), nil
		default:
			return Value{}, fmt.Errorf("operator %q not defined for strings", n.op)
		}
	case kindBool:
		switch n.op {
		case "==":
			return Bool(l.b == r.b), nil
		case "!=":
			return Bool(l.b != r.b), nil
		default:
			return Value{}, fmt.Errorf("operator %q not defined for booleans", n.op)
		}
	}
	return Value{}, fmt.Errorf("unsupported operator %q", n.op)
}

func evalBool(n node, ctx Context) (bool, error) {
	v, err := n.eval(ctx)
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, fmt.Errorf("expected boolean, got %s", v.kindName())
	}
	return v.b, nil
}
