package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/prcycle/schema"
)

func testSchema() schema.FieldSchema {
	return schema.FieldSchema{
		"a":                        schema.KindNumber,
		"b":                        schema.KindNumber,
		"c":                        schema.KindNumber,
		"zero":                     schema.KindNumber,
		"flag":                     schema.KindBoolean,
		"name":                     schema.KindString,
		"xs":                       schema.KindNumberList,
		"total_revenue":            schema.KindNumber,
		"segment_revenues":         schema.KindNumberList,
		"executive_comp_disclosed": schema.KindBoolean,
	}
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a + b * c > 10 AND NOT flag OR name == 'x'", `((((a + (b * c)) > 10) AND (NOT flag)) OR (name == "x"))`},
		{"a - b - c > 0", "(((a - b) - c) > 0)"},
		{"a / b * c >= 1", "(((a / b) * c) >= 1)"},
		{"-a * 2 > 0", "(((-a) * 2) > 0)"},
		{"(a + b) * c < 5", "(((a + b) * c) < 5)"},
		{"a > 1 == flag", "((a > 1) == flag)"},
		{"flag OR flag AND false", "(flag OR (flag AND false))"},
		{"NOT NOT flag", "(NOT (NOT flag))"},
		{"sum(xs) / count(xs) > avg(xs)", "((sum(xs) / count(xs)) > avg(xs))"},
		{"executive_comp_disclosed == false", "(executive_comp_disclosed == false)"},
		{`name != "O'Brien"`, `(name != "O'Brien")`},
		{"1.5e2 > .5", "(150 > 0.5)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, err := Parse(tt.input, testSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Root().String())
			assert.Equal(t, schema.KindBoolean, c.Kind())
			assert.Equal(t, tt.input, c.Source())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	var (
		parseErr   *ParseError
		typeErr    *TypeError
		unknownErr *UnknownFieldError
	)

	tests := []struct {
		name   string
		input  string
		target any
		pos    int
		msg    string
	}{
		{"empty", "", &parseErr, 0, "empty"},
		{"blank", "   ", &parseErr, 0, "empty"},
		{"dangling operator", "total_revenue >", &parseErr, 15, "end of expression"},
		{"unclosed paren", "(a > 1", &parseErr, 6, "expected ')'"},
		{"extra paren", "a > 1)", &parseErr, 5, "unexpected ')'"},
		{"single equals", "a = 1", &parseErr, 2, "'=='"},
		{"bang", "!flag", &parseErr, 0, "NOT"},
		{"ampersand", "flag && flag", &parseErr, 5, "AND"},
		{"lowercase keyword", "a > 1 and b > 2", &parseErr, 6, "identifier"},
		{"unterminated string", "name == 'abc", &parseErr, 8, "unterminated"},
		{"bad escape", `name == "a\q"`, &parseErr, 10, "escape"},
		{"malformed number", "a > 1.", &parseErr, 4, "malformed"},
		{"number then letters", "a > 12abc", &parseErr, 4, "malformed"},
		{"unknown function", "median(xs) > 1", &parseErr, 0, "unknown function"},
		{"field called as function", "a(xs) > 1", &parseErr, 0, "unknown function"},
		{"no arguments", "sum() > 1", &parseErr, 0, "exactly 1 argument, got 0"},
		{"two arguments", "sum(xs, xs) > 1", &parseErr, 0, "exactly 1 argument, got 2"},
		{"scalar argument", "avg(a) > 1", &parseErr, 4, "NumberList"},
		{"literal zero divisor", "a / 0 > 1", &parseErr, 4, "literal zero"},
		{"literal zero float divisor", "a / 0.0 > 1", &parseErr, 4, "literal zero"},
		{"negative literal zero divisor", "a / -0 > 1", &parseErr, 4, "literal zero"},
		{"unknown field", "unknown_x > 1", &unknownErr, 0, "unknown field: unknown_x"},
		{"unknown field in call", "sum(nope) > 1", &unknownErr, 4, "unknown field: nope"},
		{"number vs string", "a > name", &typeErr, 2, "two Numbers or two Strings"},
		{"number equals string", "a == name", &typeErr, 2, "same kind"},
		{"chained relational", "a < b < c", &typeErr, 6, "two Numbers or two Strings"},
		{"list comparison", "xs == xs", &typeErr, 3, "comparable"},
		{"bare list", "xs > 1", &typeErr, 3, "NumberList"},
		{"arithmetic on boolean", "flag + 1 > 0", &typeErr, 5, "Number operands"},
		{"AND on number", "a > 1 AND b", &typeErr, 6, "Boolean operands"},
		{"NOT on number", "NOT a", &typeErr, 0, "Boolean operand"},
		{"negate boolean", "-flag", &typeErr, 0, "Number operand"},
		{"non-boolean root", "a + 1", &typeErr, 0, "must be Boolean"},
		{"string root", "name", &typeErr, 0, "must be Boolean, got String"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.input, testSchema())
			require.Error(t, err)
			assert.Nil(t, c)
			require.True(t, errors.As(err, tt.target), "error %T (%v) has the wrong type", err, err)
			assert.Contains(t, err.Error(), tt.msg)

			switch e := err.(type) {
			case *ParseError:
				assert.Equal(t, tt.pos, e.Position)
			case *TypeError:
				assert.Equal(t, tt.pos, e.Position)
			case *UnknownFieldError:
				assert.Equal(t, tt.pos, e.Position)
			}
		})
	}
}

func TestParse_MaxDepth(t *testing.T) {
	nested := func(n int) string {
		return strings.Repeat("(", n) + "flag" + strings.Repeat(")", n)
	}

	_, err := Parse(nested(MaxDepth), testSchema())
	require.NoError(t, err)

	_, err = Parse(nested(MaxDepth+1), testSchema())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "nested deeper")

	_, err = Parse(strings.Repeat("NOT ", MaxDepth+1)+"flag", testSchema())
	require.ErrorAs(t, err, &parseErr)
}

func TestParse_Dependencies(t *testing.T) {
	c, err := Parse("total_revenue != sum(segment_revenues) AND total_revenue > 0 AND NOT flag", testSchema())
	require.NoError(t, err)

	assert.Equal(t, []string{"flag", "segment_revenues", "total_revenue"}, c.Dependencies())

	deps := c.Dependencies()
	deps[0] = "mutated"
	assert.Equal(t, "flag", c.Dependencies()[0], "Dependencies must return a copy")
}

func TestParse_LiteralOnlyCondition(t *testing.T) {
	c, err := Parse("true", testSchema())
	require.NoError(t, err)
	assert.Empty(t, c.Dependencies())
}

func TestParseExpression(t *testing.T) {
	c, err := ParseExpression("sum(segment_revenues) - total_revenue", testSchema())
	require.NoError(t, err)
	assert.Equal(t, schema.KindNumber, c.Kind())

	c, err = ParseExpression("name", testSchema())
	require.NoError(t, err)
	assert.Equal(t, schema.KindString, c.Kind())

	_, err = ParseExpression("segment_revenues", testSchema())
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Contains(t, typeErr.Message, "scalar")
}

func TestWalk(t *testing.T) {
	c, err := Parse("a + sum(xs) > 1 AND NOT flag", testSchema())
	require.NoError(t, err)

	var refs []string
	Walk(c.Root(), func(n Node) {
		if f, ok := n.(*FieldRef); ok {
			refs = append(refs, f.Name)
		}
	})
	assert.Equal(t, []string{"a", "xs", "flag"}, refs)
}
