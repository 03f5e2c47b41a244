package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/prcycle/schema"
)

func financialDefinition() schema.Definition {
	return schema.Definition{
		Fields: schema.FieldSchema{
			"segment_revenues":  schema.KindNumberList,
			"current_expenses":  schema.KindNumber,
			"previous_expenses": schema.KindNumber,
		},
		Derived: []schema.DerivedField{
			{Name: "segment_revenues_sum", Expression: "sum(segment_revenues)"},
			{Name: "increase_percentage", Expression: "(current_expenses - previous_expenses) * 100 / previous_expenses"},
			{Name: "large_increase", Expression: "increase_percentage > 10"},
		},
	}
}

func TestCompileDerived(t *testing.T) {
	d, err := CompileDerived(financialDefinition())
	require.NoError(t, err)

	s := d.Schema()
	assert.Equal(t, schema.KindNumber, s["segment_revenues_sum"])
	assert.Equal(t, schema.KindNumber, s["increase_percentage"])
	assert.Equal(t, schema.KindBoolean, s["large_increase"])
	assert.Equal(t, schema.KindNumberList, s["segment_revenues"])
	assert.Equal(t, []string{"segment_revenues_sum", "increase_percentage", "large_increase"}, d.Names())

	c, err := Parse("large_increase AND segment_revenues_sum > 0", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"large_increase", "segment_revenues_sum"}, c.Dependencies())
}

func TestCompileDerived_Errors(t *testing.T) {
	base := schema.FieldSchema{"segment_revenues": schema.KindNumberList, "a": schema.KindNumber}

	tests := []struct {
		name    string
		derived []schema.DerivedField
		check   func(t *testing.T, err error)
	}{
		{
			name:    "list result",
			derived: []schema.DerivedField{{Name: "copy", Expression: "segment_revenues"}},
			check: func(t *testing.T, err error) {
				var typeErr *TypeError
				assert.ErrorAs(t, err, &typeErr)
			},
		},
		{
			name: "forward reference",
			derived: []schema.DerivedField{
				{Name: "first", Expression: "second + 1"},
				{Name: "second", Expression: "a * 2"},
			},
			check: func(t *testing.T, err error) {
				var unknown *UnknownFieldError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "second", unknown.Name)
			},
		},
		{
			name:    "syntax error",
			derived: []schema.DerivedField{{Name: "broken", Expression: "a +"}},
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				assert.ErrorAs(t, err, &parseErr)
				assert.Contains(t, err.Error(), "derived field broken")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileDerived(schema.Definition{Fields: base, Derived: tt.derived})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDerivationsApply(t *testing.T) {
	d, err := CompileDerived(financialDefinition())
	require.NoError(t, err)

	fields := map[string]schema.Value{
		"segment_revenues":  schema.NumberList(40, 50),
		"current_expenses":  schema.Number(120),
		"previous_expenses": schema.Number(100),
	}

	out, err := d.Apply(fields, []string{"large_increase"})
	require.NoError(t, err)

	assert.Equal(t, 20.0, out["increase_percentage"].Num())
	assert.True(t, out["large_increase"].Bool())
	_, computed := out["segment_revenues_sum"]
	assert.False(t, computed, "unneeded derived fields are skipped")
	assert.Len(t, fields, 3, "input map must not be modified")

	out, err = d.Apply(fields, []string{"segment_revenues_sum", "current_expenses"})
	require.NoError(t, err)
	assert.Equal(t, 90.0, out["segment_revenues_sum"].Num())
}

func TestDerivationsApply_NothingNeeded(t *testing.T) {
	d, err := CompileDerived(financialDefinition())
	require.NoError(t, err)

	fields := map[string]schema.Value{"current_expenses": schema.Number(1)}
	out, err := d.Apply(fields, []string{"current_expenses"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestDerivationsApply_Errors(t *testing.T) {
	d, err := CompileDerived(financialDefinition())
	require.NoError(t, err)

	_, err = d.Apply(map[string]schema.Value{
		"current_expenses":  schema.Number(120),
		"previous_expenses": schema.Number(0),
	}, []string{"increase_percentage"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Contains(t, err.Error(), "derived field increase_percentage")

	_, err = d.Apply(map[string]schema.Value{
		"current_expenses": schema.Number(120),
	}, []string{"large_increase"})
	assert.ErrorIs(t, err, ErrMissingField)
}
