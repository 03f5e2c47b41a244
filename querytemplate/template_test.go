package querytemplate

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/prcycle/schema"
)

func TestRender_RevenueMismatchScenario(t *testing.T) {
	fields := map[string]schema.Value{
		"total_revenue":    schema.Number(100),
		"segment_revenues": schema.NumberList(40, 50),
	}

	got, err := Render("Mismatch: reported {{total_revenue}} vs sum {{segment_revenues}}", fields)
	require.NoError(t, err)
	assert.Equal(t, "Mismatch: reported 100 vs sum 40,50", got)
}

func TestRender(t *testing.T) {
	fields := map[string]schema.Value{
		"total_revenue":   schema.Number(1500000.5),
		"disclosed":       schema.Boolean(false),
		"category":        schema.String("Marketing"),
		"injected":        schema.String("{{total_revenue}}"),
		"q4":              schema.Number(-0.25),
		"_private":        schema.String("p"),
		"segments":        schema.NumberList(1.5, 2),
		"empty_segments":  schema.NumberList(),
		"company_name_v2": schema.String("Acme"),
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no placeholders", "Please review the filing.", "Please review the filing."},
		{"empty", "", ""},
		{"number", "Revenue {{total_revenue}}", "Revenue 1500000.5"},
		{"boolean", "Disclosed: {{disclosed}}", "Disclosed: false"},
		{"string", "Category {{category}}.", "Category Marketing."},
		{"list", "Segments [{{segments}}]", "Segments [1.5,2]"},
		{"empty list", "Segments [{{empty_segments}}]", "Segments []"},
		{"negative", "{{q4}}", "-0.25"},
		{"adjacent", "{{category}}{{disclosed}}", "Marketingfalse"},
		{"repeated", "{{q4}} and {{q4}}", "-0.25 and -0.25"},
		{"leading underscore and digits", "{{_private}} {{company_name_v2}}", "p Acme"},
		{"value not rescanned", "Value: {{injected}}", "Value: {{total_revenue}}"},
		{"whitespace inside braces", "{{ total_revenue }}", "{{ total_revenue }}"},
		{"uppercase", "{{Total}}", "{{Total}}"},
		{"lone open", "a {{ b", "a {{ b"},
		{"lone close", "a }} b", "a }} b"},
		{"single braces", "{category}", "{category}"},
		{"triple braces", "{{{category}}}", "{{{category}}}"},
		{"extra open brace", "{{{category}}", "{{{category}}"},
		{"extra close brace", "{{category}}}", "{{category}}}"},
		{"braces around text", "{ {{category}} }", "{ Marketing }"},
		{"leading digit", "{{4q}}", "{{4q}}"},
		{"hyphen", "{{total-revenue}}", "{{total-revenue}}"},
		{"empty name", "{{}}", "{{}}"},
		{"unclosed then valid", "{{oops {{category}}", "{{oops Marketing"},
		{"unicode prose", "Résumé – {{category}} ✓", "Résumé – Marketing ✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_UnresolvedPlaceholder(t *testing.T) {
	fields := map[string]schema.Value{"total_revenue": schema.Number(1)}

	got, err := Render("Revenue {{total_revenue}} but {{missing_field}}", fields)
	assert.Empty(t, got)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, "missing_field", renderErr.Placeholder)
	assert.ErrorIs(t, err, ErrUnresolvedPlaceholder)
	assert.Equal(t, "unresolved placeholder: {{missing_field}}", err.Error())
}

func TestRender_InvalidValueIsUnresolved(t *testing.T) {
	_, err := Render("{{a}}", map[string]schema.Value{"a": {}})
	assert.ErrorIs(t, err, ErrUnresolvedPlaceholder)
}

func TestPlaceholders(t *testing.T) {
	tpl := Parse("{{b}} {{a}} {{ c }} {{b}} {{Total}} {{d_1}}")
	assert.Equal(t, []string{"b", "a", "d_1"}, tpl.Placeholders())

	names := tpl.Placeholders()
	names[0] = "changed"
	assert.Equal(t, "b", tpl.Placeholders()[0])

	assert.Empty(t, Parse("no placeholders {{ here }}").Placeholders())
}

func TestCheckFields(t *testing.T) {
	known := func(name string) bool {
		return name == "total_revenue" || name == "segment_revenues"
	}

	assert.NoError(t, CheckFields(Parse("{{total_revenue}} vs {{segment_revenues}}"), known))
	assert.NoError(t, CheckFields(Parse("{{ unknown }} is prose"), known))

	err := CheckFields(Parse("{{total_revenue}} {{missing_field}} {{other}}"), known)
	var unknown *UnknownPlaceholderError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing_field", unknown.Name)
}

func TestTemplateReuse(t *testing.T) {
	tpl := Parse("Company {{id}}")
	for _, id := range []string{"1", "2", "3"} {
		got, err := tpl.Render(map[string]schema.Value{"id": schema.String(id)})
		require.NoError(t, err)
		assert.Equal(t, "Company "+id, got)
	}
	assert.Equal(t, "Company {{id}}", tpl.Source())
}

func TestProperty_RenderLeavesNoPlaceholders(t *testing.T) {
	names := []string{"total_revenue", "segment_revenues", "a", "b_2", "_x"}
	literals := []string{"Mismatch: ", " vs ", "reported ", ".", " ", "Q4 ", "(", ")", "%", "\n"}

	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("rendering with every field present leaves no placeholder", prop.ForAll(
		func(seed int64, n int, value float64) bool {
			r := rand.New(rand.NewSource(seed))
			fields := make(map[string]schema.Value, len(names))
			for i, name := range names {
				fields[name] = schema.Number(value * float64(i+1))
			}

			var tpl, want strings.Builder
			for i := 0; i < n; i++ {
				if r.Intn(2) == 0 {
					name := names[r.Intn(len(names))]
					tpl.WriteString("{{" + name + "}}")
					want.WriteString(fields[name].String())
				} else {
					lit := literals[r.Intn(len(literals))]
					tpl.WriteString(lit)
					want.WriteString(lit)
				}
			}

			got, err := Render(tpl.String(), fields)
			if err != nil || got != want.String() {
				return false
			}
			return len(Parse(got).Placeholders()) == 0
		},
		gen.Int64(),
		gen.IntRange(0, 20),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
