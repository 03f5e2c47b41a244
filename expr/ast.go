package expr

import (
	"strconv"
	"strings"

	"github.com/liamcoop/prcycle/schema"
)

// Op is a unary or binary operator.
type Op int

const (
	OpOr Op = iota
	OpAnd
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNot
	OpNeg
)

func (o Op) String() string {
	switch o {
	case OpOr:
		return "OR"
	case OpAnd:
		return "AND"
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpNot:
		return "NOT"
	case OpNeg:
		return "-"
	default:
		return "?"
	}
}

// Node is a type-checked expression tree node. Nodes are immutable after parsing.
type Node interface {
	// Pos is the byte offset of the node in the source text.
	Pos() int
	// Kind is the static result kind.
	Kind() schema.Kind
	// String renders the node fully parenthesised.
	String() string
}

type NumberLit struct {
	Offset int
	Value  float64
}

type StringLit struct {
	Offset int
	Value  string
}

type BoolLit struct {
	Offset int
	Value  bool
}

// FieldRef reads a record field. FieldKind is the kind declared in the schema.
type FieldRef struct {
	Offset    int
	Name      string
	FieldKind schema.Kind
}

type Unary struct {
	Offset  int
	Op      Op
	Operand Node
}

// Binary is a binary operation. For comparisons Kind is Boolean regardless of operand kinds.
type Binary struct {
	Offset int
	Op     Op
	Left   Node
	Right  Node
}

// Call applies a registered aggregate to a single NumberList argument.
type Call struct {
	Offset int
	Func   string
	Arg    Node
}

func (n *NumberLit) Pos() int          { return n.Offset }
func (n *NumberLit) Kind() schema.Kind { return schema.KindNumber }
func (n *NumberLit) String() string    { return strconv.FormatFloat(n.Value, 'f', -1, 64) }

func (n *StringLit) Pos() int          { return n.Offset }
func (n *StringLit) Kind() schema.Kind { return schema.KindString }
func (n *StringLit) String() string    { return strconv.Quote(n.Value) }

func (n *BoolLit) Pos() int          { return n.Offset }
func (n *BoolLit) Kind() schema.Kind { return schema.KindBoolean }
func (n *BoolLit) String() string    { return strconv.FormatBool(n.Value) }

func (n *FieldRef) Pos() int          { return n.Offset }
func (n *FieldRef) Kind() schema.Kind { return n.FieldKind }
func (n *FieldRef) String() string    { return n.Name }

func (n *Unary) Pos() int { return n.Offset }

func (n *Unary) Kind() schema.Kind {
	if n.Op == OpNot {
		return schema.KindBoolean
	}
	return schema.KindNumber
}

func (n *Unary) String() string {
	if n.Op == OpNot {
		return "(NOT " + n.Operand.String() + ")"
	}
	return "(-" + n.Operand.String() + ")"
}

func (n *Binary) Pos() int { return n.Offset }

func (n *Binary) Kind() schema.Kind {
	switch n.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return schema.KindNumber
	default:
		return schema.KindBoolean
	}
}

func (n *Binary) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(n.Left.String())
	b.WriteByte(' ')
	b.WriteString(n.Op.String())
	b.WriteByte(' ')
	b.WriteString(n.Right.String())
	b.WriteByte(')')
	return b.String()
}

func (n *Call) Pos() int          { return n.Offset }
func (n *Call) Kind() schema.Kind { return schema.KindNumber }
func (n *Call) String() string    { return n.Func + "(" + n.Arg.String() + ")" }

// Walk calls fn for n and every descendant in depth-first order.
func Walk(n Node, fn func(Node)) {
	fn(n)
	switch x := n.(type) {
	case *Unary:
		Walk(x.Operand, fn)
	case *Binary:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case *Call:
		Walk(x.Arg, fn)
	}
}
