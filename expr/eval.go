package expr

import (
	"fmt"

	"github.com/liamcoop/prcycle/schema"
)

// CompiledCondition is a parsed and type-checked expression. It is immutable and safe
// to share between goroutines.
type CompiledCondition struct {
	source string
	root   Node
	kind   schema.Kind
	deps   []string
}

// Source returns the text the condition was compiled from.
func (c *CompiledCondition) Source() string { return c.source }

// Root returns the expression tree.
func (c *CompiledCondition) Root() Node { return c.root }

// Kind returns the static result kind.
func (c *CompiledCondition) Kind() schema.Kind { return c.kind }

// Dependencies returns the referenced field names, sorted.
func (c *CompiledCondition) Dependencies() []string {
	out := make([]string, len(c.deps))
	copy(out, c.deps)
	return out
}

// Evaluate runs c against a record.
func Evaluate(c *CompiledCondition, rec schema.Record) (schema.Value, error) {
	return c.Eval(rec.Fields)
}

// Eval runs the expression against a field map. Errors are always *EvalError.
func (c *CompiledCondition) Eval(fields map[string]schema.Value) (schema.Value, error) {
	return eval(c.root, fields)
}

// Match evaluates a Boolean condition.
func (c *CompiledCondition) Match(fields map[string]schema.Value) (bool, error) {
	v, err := c.Eval(fields)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func eval(n Node, fields map[string]schema.Value) (schema.Value, error) {
	switch x := n.(type) {
	case *NumberLit:
		return schema.Number(x.Value), nil
	case *StringLit:
		return schema.String(x.Value), nil
	case *BoolLit:
		return schema.Boolean(x.Value), nil
	case *FieldRef:
		return lookup(x, fields)
	case *Unary:
		return evalUnary(x, fields)
	case *Binary:
		return evalBinary(x, fields)
	case *Call:
		arg, err := eval(x.Arg, fields)
		if err != nil {
			return schema.Value{}, err
		}
		f, err := functions[x.Func](arg.List())
		if err != nil {
			return schema.Value{}, err
		}
		return schema.Number(f), nil
	default:
		panic(fmt.Sprintf("expr: unexpected node %T", n))
	}
}

func lookup(ref *FieldRef, fields map[string]schema.Value) (schema.Value, error) {
	v, ok := fields[ref.Name]
	if !ok || !v.IsValid() {
		return schema.Value{}, &EvalError{Kind: MissingField, Field: ref.Name}
	}
	if v.Kind() != ref.FieldKind {
		return schema.Value{}, &EvalError{Kind: KindMismatch, Field: ref.Name, Expected: ref.FieldKind, Got: v.Kind()}
	}
	return v, nil
}

func evalUnary(n *Unary, fields map[string]schema.Value) (schema.Value, error) {
	v, err := eval(n.Operand, fields)
	if err != nil {
		return schema.Value{}, err
	}
	if n.Op == OpNot {
		return schema.Boolean(!v.Bool()), nil
	}
	return schema.Number(-v.Num()), nil
}

func evalBinary(n *Binary, fields map[string]schema.Value) (schema.Value, error) {
	left, err := eval(n.Left, fields)
	if err != nil {
		return schema.Value{}, err
	}

	switch n.Op {
	case OpAnd:
		if !left.Bool() {
			return left, nil
		}
		return eval(n.Right, fields)
	case OpOr:
		if left.Bool() {
			return left, nil
		}
		return eval(n.Right, fields)
	}

	right, err := eval(n.Right, fields)
	if err != nil {
		return schema.Value{}, err
	}

	switch n.Op {
	case OpEq:
		return schema.Boolean(left.Equal(right)), nil
	case OpNeq:
		return schema.Boolean(!left.Equal(right)), nil
	case OpLt, OpLe, OpGt, OpGe:
		return schema.Boolean(compare(n.Op, left, right)), nil
	case OpAdd:
		return schema.Number(left.Num() + right.Num()), nil
	case OpSub:
		return schema.Number(left.Num() - right.Num()), nil
	case OpMul:
		return schema.Number(left.Num() * right.Num()), nil
	case OpDiv:
		if right.Num() == 0 {
			return schema.Value{}, &EvalError{Kind: DivisionByZero}
		}
		return schema.Number(left.Num() / right.Num()), nil
	default:
		panic(fmt.Sprintf("expr: unexpected binary operator %s", n.Op))
	}
}

// compare orders two Numbers or two Strings; the parser guarantees matching kinds.
func compare(op Op, left, right schema.Value) bool {
	var c int
	if left.Kind() == schema.KindString {
		switch {
		case left.Str() < right.Str():
			c = -1
		case left.Str() > right.Str():
			c = 1
		}
	} else {
		l, r := left.Num(), right.Num()
		switch {
		case l < r:
			c = -1
		case l > r:
			c = 1
		case l != r: // NaN
			return false
		}
	}

	switch op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	default:
		return c >= 0
	}
}
