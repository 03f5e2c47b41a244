package schema

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSchemaValidate_Empty(t *testing.T) {
	err := FieldSchema{}.Validate()
	if err == nil {
		t.Fatal("Expected error for empty schema, got nil")
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("Expected error message about empty schema, got: %v", err)
	}
}

func TestFieldSchemaValidate_TooManyFields(t *testing.T) {
	s := FieldSchema{}
	for i := 0; i <= MaxFields; i++ {
		s["field_"+strconv.Itoa(i)] = KindNumber
	}

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		ident   string
		wantErr string
	}{
		{"simple", "total_revenue", ""},
		{"leading underscore", "_hidden", ""},
		{"digits", "q4_revenue_2024", ""},
		{"empty", "", "empty"},
		{"uppercase", "TotalRevenue", "pattern"},
		{"leading digit", "4q", "pattern"},
		{"hyphen", "total-revenue", "pattern"},
		{"space", "total revenue", "pattern"},
		{"reserved and", "and", "reserved"},
		{"reserved function", "sum", "reserved"},
		{"reserved literal", "true", "reserved"},
		{"too long", strings.Repeat("a", MaxIdentifierLength+1), "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.ident)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	base := FieldSchema{"total_revenue": KindNumber, "segment_revenues": KindNumberList}

	tests := []struct {
		name    string
		derived []DerivedField
		wantErr string
	}{
		{"no derived", nil, ""},
		{"valid derived", []DerivedField{{Name: "segment_revenues_sum", Expression: "sum(segment_revenues)"}}, ""},
		{"collides with field", []DerivedField{{Name: "total_revenue", Expression: "1"}}, "collides"},
		{"duplicate", []DerivedField{{Name: "x", Expression: "1"}, {Name: "x", Expression: "2"}}, "twice"},
		{"blank expression", []DerivedField{{Name: "x", Expression: "  "}}, "empty expression"},
		{"bad name", []DerivedField{{Name: "X", Expression: "1"}}, "invalid derived field name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Definition{Fields: base, Derived: tt.derived}.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDefinition(t *testing.T) {
	doc := `
fields:
  total_revenue: number
  segment_revenues: number_list
  executive_comp_disclosed: boolean
  expense_category: string
derived:
  - name: segment_revenues_sum
    expression: sum(segment_revenues)
`
	def, err := ParseDefinition([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, KindNumber, def.Fields["total_revenue"])
	assert.Equal(t, KindNumberList, def.Fields["segment_revenues"])
	assert.Equal(t, KindBoolean, def.Fields["executive_comp_disclosed"])
	assert.Equal(t, KindString, def.Fields["expense_category"])
	require.Len(t, def.Derived, 1)
	assert.Equal(t, "segment_revenues_sum", def.Derived[0].Name)
	assert.Equal(t, []string{"executive_comp_disclosed", "expense_category", "segment_revenues", "total_revenue"}, def.Fields.Names())
}

func TestParseDefinition_BadKind(t *testing.T) {
	_, err := ParseDefinition([]byte("fields:\n  total_revenue: decimal\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kind")
}

func TestLoadDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  total_revenue: number\n"), 0o600))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.True(t, def.Fields.Has("total_revenue"))

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFieldSchemaWith(t *testing.T) {
	s := FieldSchema{"a": KindNumber}
	extended := s.With("b", KindBoolean)

	assert.False(t, s.Has("b"), "With must not mutate the receiver")
	k, ok := extended.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, KindBoolean, k)
}
