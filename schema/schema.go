// Package schema declares the fields that rule conditions and query templates may reference,
// and the typed values records carry for them.
package schema

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MaxFields bounds the size of a field schema.
	MaxFields = 500

	// MaxIdentifierLength bounds field names.
	MaxIdentifierLength = 100
)

// identifierPattern is the placeholder-compatible field name form (lowercase snake case).
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// FieldSchema maps field names to their declared kind.
// Treat as immutable once loaded.
type FieldSchema map[string]Kind

// Lookup returns the kind declared for name.
func (s FieldSchema) Lookup(name string) (Kind, bool) {
	k, ok := s[name]
	return k, ok
}

// Has reports whether name is declared.
func (s FieldSchema) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the declared field names in sorted order.
func (s FieldSchema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of the schema with one more field.
func (s FieldSchema) With(name string, kind Kind) FieldSchema {
	out := make(FieldSchema, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = kind
	return out
}

// Validate checks field names and kinds.
func (s FieldSchema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema cannot be empty, must declare at least one field")
	}
	if len(s) > MaxFields {
		return fmt.Errorf("schema declares %d fields, maximum allowed is %d", len(s), MaxFields)
	}

	for _, name := range s.Names() {
		if err := ValidateIdentifier(name); err != nil {
			return fmt.Errorf("invalid field name %q: %w", name, err)
		}
		switch s[name] {
		case KindNumber, KindBoolean, KindString, KindNumberList:
		default:
			return fmt.Errorf("field %q has invalid kind", name)
		}
	}
	return nil
}

// DerivedField is a field computed from other fields before a rule is evaluated.
// Expression uses the condition language and must produce a scalar.
type DerivedField struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// Definition is the loaded schema: declared fields plus derived fields in declaration order.
// A derived field may reference base fields and derived fields declared before it.
type Definition struct {
	Fields  FieldSchema    `json:"fields" yaml:"fields"`
	Derived []DerivedField `json:"derived,omitempty" yaml:"derived,omitempty"`
}

// Validate checks the base schema and the derived field declarations.
// Derived expressions are type-checked by the expression package, not here.
func (d Definition) Validate() error {
	if err := d.Fields.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(d.Derived))
	for i, df := range d.Derived {
		if err := ValidateIdentifier(df.Name); err != nil {
			return fmt.Errorf("invalid derived field name %q: %w", df.Name, err)
		}
		if d.Fields.Has(df.Name) {
			return fmt.Errorf("derived field %q collides with a declared field", df.Name)
		}
		if seen[df.Name] {
			return fmt.Errorf("derived field %q declared twice", df.Name)
		}
		if strings.TrimSpace(df.Expression) == "" {
			return fmt.Errorf("derived field %d (%q) has an empty expression", i, df.Name)
		}
		seen[df.Name] = true
	}
	return nil
}

// ParseDefinition decodes a YAML (or JSON) schema document and validates it.
//
//	fields:
//	  total_revenue: number
//	  segment_revenues: number_list
//	derived:
//	  - name: segment_revenues_sum
//	    expression: sum(segment_revenues)
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinition reads and validates a schema file.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseDefinition(data)
}

// ValidateIdentifier checks a field name: 1-100 chars, lowercase snake case, not reserved.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-z_][a-z0-9_]*$ (lowercase letters, digits and underscores)")
	}
	if IsReserved(name) {
		return fmt.Errorf("cannot use reserved word %q as identifier", name)
	}
	return nil
}

var reservedWords = map[string]bool{
	"true":  true,
	"false": true,
	"and":   true,
	"or":    true,
	"not":   true,
	"sum":   true,
	"avg":   true,
	"count": true,
}

// IsReserved reports whether name is a literal, operator keyword or function name.
func IsReserved(name string) bool {
	return reservedWords[strings.ToLower(name)]
}
