// Package expr implements the rule condition language: a lexer, a recursive-descent
// parser that type-checks against a field schema, and a tree-walking evaluator.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liamcoop/prcycle/schema"
)

// MaxDepth bounds the nesting of parentheses, unary operators and calls.
const MaxDepth = 64

// Parse compiles a rule condition against s. The condition must be Boolean.
//
// Errors are *ParseError for syntax problems, unknown functions and bad call
// signatures; *UnknownFieldError for undeclared identifiers; *TypeError for kind
// mismatches.
func Parse(condition string, s schema.FieldSchema) (*CompiledCondition, error) {
	c, err := compile(condition, s)
	if err != nil {
		return nil, err
	}
	if c.kind != schema.KindBoolean {
		return nil, &TypeError{
			Position: 0,
			Message:  fmt.Sprintf("condition must be Boolean, got %s", c.kind),
		}
	}
	return c, nil
}

// ParseExpression compiles an expression of any scalar kind, as used by derived fields.
func ParseExpression(text string, s schema.FieldSchema) (*CompiledCondition, error) {
	c, err := compile(text, s)
	if err != nil {
		return nil, err
	}
	if c.kind == schema.KindNumberList {
		return nil, &TypeError{
			Position: c.root.Pos(),
			Message:  "expression must produce a scalar, got NumberList",
		}
	}
	return c, nil
}

func compile(text string, s schema.FieldSchema) (*CompiledCondition, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	if toks[0].typ == tokEOF {
		return nil, &ParseError{Position: 0, Message: "empty expression"}
	}

	p := &parser{toks: toks, schema: s, deps: make(map[string]struct{})}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokEOF {
		return nil, &ParseError{Position: tok.pos, Message: fmt.Sprintf("unexpected %s", tok.describe())}
	}

	deps := make([]string, 0, len(p.deps))
	for name := range p.deps {
		deps = append(deps, name)
	}
	sort.Strings(deps)

	return &CompiledCondition{
		source: text,
		root:   root,
		kind:   root.Kind(),
		deps:   deps,
	}, nil
}

type parser struct {
	toks   []token
	pos    int
	depth  int
	schema schema.FieldSchema
	deps   map[string]struct{}
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.typ != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.next()
	if tok.typ != typ {
		return tok, &ParseError{Position: tok.pos, Message: fmt.Sprintf("expected %s, got %s", typ, tok.describe())}
	}
	return tok, nil
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > MaxDepth {
		return &ParseError{Position: pos, Message: fmt.Sprintf("expression nested deeper than %d levels", MaxDepth)}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

var binaryOps = map[tokenType]Op{
	tokOr:    OpOr,
	tokAnd:   OpAnd,
	tokEq:    OpEq,
	tokNeq:   OpNeq,
	tokLt:    OpLt,
	tokLe:    OpLe,
	tokGt:    OpGt,
	tokGe:    OpGe,
	tokPlus:  OpAdd,
	tokMinus: OpSub,
	tokStar:  OpMul,
	tokSlash: OpDiv,
}

// binaryLevel parses one left-associative precedence level.
func (p *parser) binaryLevel(operand func() (Node, error), types ...tokenType) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if !hasType(types, tok.typ) {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		node := &Binary{Offset: tok.pos, Op: binaryOps[tok.typ], Left: left, Right: right}
		if err := checkBinary(node); err != nil {
			return nil, err
		}
		left = node
	}
}

func hasType(types []tokenType, typ tokenType) bool {
	for _, t := range types {
		if t == typ {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (Node, error) {
	return p.binaryLevel(p.parseAnd, tokOr)
}

func (p *parser) parseAnd() (Node, error) {
	return p.binaryLevel(p.parseEquality, tokAnd)
}

func (p *parser) parseEquality() (Node, error) {
	return p.binaryLevel(p.parseRelational, tokEq, tokNeq)
}

func (p *parser) parseRelational() (Node, error) {
	return p.binaryLevel(p.parseAdditive, tokLt, tokLe, tokGt, tokGe)
}

func (p *parser) parseAdditive() (Node, error) {
	return p.binaryLevel(p.parseMultiplicative, tokPlus, tokMinus)
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.binaryLevel(p.parseUnary, tokStar, tokSlash)
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.typ != tokMinus && tok.typ != tokNot {
		return p.parsePrimary()
	}
	p.next()

	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if tok.typ == tokNot {
		if operand.Kind() != schema.KindBoolean {
			return nil, &TypeError{Position: tok.pos, Message: fmt.Sprintf("NOT requires a Boolean operand, got %s", operand.Kind())}
		}
		return &Unary{Offset: tok.pos, Op: OpNot, Operand: operand}, nil
	}
	if operand.Kind() != schema.KindNumber {
		return nil, &TypeError{Position: tok.pos, Message: fmt.Sprintf("unary - requires a Number operand, got %s", operand.Kind())}
	}
	return &Unary{Offset: tok.pos, Op: OpNeg, Operand: operand}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.typ {
	case tokNumber:
		return &NumberLit{Offset: tok.pos, Value: tok.num}, nil
	case tokString:
		return &StringLit{Offset: tok.pos, Value: tok.text}, nil
	case tokTrue:
		return &BoolLit{Offset: tok.pos, Value: true}, nil
	case tokFalse:
		return &BoolLit{Offset: tok.pos, Value: false}, nil
	case tokIdent:
		if p.peek().typ == tokLParen {
			return p.parseCall(tok)
		}
		kind, ok := p.schema.Lookup(tok.text)
		if !ok {
			return nil, &UnknownFieldError{Name: tok.text, Position: tok.pos}
		}
		p.deps[tok.text] = struct{}{}
		return &FieldRef{Offset: tok.pos, Name: tok.text, FieldKind: kind}, nil
	case tokLParen:
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()

		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokEOF:
		return nil, &ParseError{Position: tok.pos, Message: "unexpected end of expression"}
	default:
		return nil, &ParseError{Position: tok.pos, Message: fmt.Sprintf("unexpected %s", tok.describe())}
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	if _, ok := functions[name.text]; !ok {
		return nil, &ParseError{
			Position: name.pos,
			Message:  fmt.Sprintf("unknown function %q (available: %s)", name.text, strings.Join(functionNames(), ", ")),
		}
	}

	open := p.next() // '('
	if err := p.enter(open.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	var args []Node
	if p.peek().typ != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().typ != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, &ParseError{
			Position: name.pos,
			Message:  fmt.Sprintf("%s expects exactly 1 argument, got %d", name.text, len(args)),
		}
	}
	if args[0].Kind() != schema.KindNumberList {
		return nil, &ParseError{
			Position: args[0].Pos(),
			Message:  fmt.Sprintf("%s expects a NumberList argument, got %s", name.text, args[0].Kind()),
		}
	}
	return &Call{Offset: name.pos, Func: name.text, Arg: args[0]}, nil
}

func functionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkBinary applies the operand kind rules and the literal-zero divisor check.
func checkBinary(n *Binary) error {
	lk, rk := n.Left.Kind(), n.Right.Kind()
	mismatch := func(want string) error {
		return &TypeError{
			Position: n.Offset,
			Message:  fmt.Sprintf("operator %s requires %s, got %s and %s", n.Op, want, lk, rk),
		}
	}

	switch n.Op {
	case OpAnd, OpOr:
		if lk != schema.KindBoolean || rk != schema.KindBoolean {
			return mismatch("Boolean operands")
		}
	case OpEq, OpNeq:
		if lk != rk {
			return mismatch("operands of the same kind")
		}
		if lk == schema.KindNumberList {
			return mismatch("comparable operands")
		}
	case OpLt, OpLe, OpGt, OpGe:
		if lk != rk || (lk != schema.KindNumber && lk != schema.KindString) {
			return mismatch("two Numbers or two Strings")
		}
	case OpAdd, OpSub, OpMul, OpDiv:
		if lk != schema.KindNumber || rk != schema.KindNumber {
			return mismatch("Number operands")
		}
		if n.Op == OpDiv && isLiteralZero(n.Right) {
			return &ParseError{Position: n.Right.Pos(), Message: "division by literal zero"}
		}
	}
	return nil
}

func isLiteralZero(n Node) bool {
	switch x := n.(type) {
	case *NumberLit:
		return x.Value == 0
	case *Unary:
		return x.Op == OpNeg && isLiteralZero(x.Operand)
	default:
		return false
	}
}
