package expr

import (
	"fmt"
	"maps"

	"github.com/liamcoop/prcycle/schema"
)

type derivation struct {
	name string
	expr *CompiledCondition
}

// Derivations holds the compiled derived fields of a schema definition.
type Derivations struct {
	effective schema.FieldSchema
	fields    []derivation
}

// CompileDerived type-checks every derived field of def in declaration order. Each
// derived expression sees the base fields plus the derived fields declared before it.
func CompileDerived(def schema.Definition) (*Derivations, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	d := &Derivations{effective: def.Fields}
	for _, df := range def.Derived {
		c, err := ParseExpression(df.Expression, d.effective)
		if err != nil {
			return nil, fmt.Errorf("derived field %s: %w", df.Name, err)
		}
		d.effective = d.effective.With(df.Name, c.Kind())
		d.fields = append(d.fields, derivation{name: df.Name, expr: c})
	}
	return d, nil
}

// Schema returns the base fields plus the derived fields with their result kinds.
func (d *Derivations) Schema() schema.FieldSchema { return d.effective }

// Names returns the derived field names in declaration order.
func (d *Derivations) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.name
	}
	return names
}

// Apply computes the derived fields that needs refers to, directly or through other
// derived fields, and returns fields extended with them. fields is not modified; when
// nothing needs computing it is returned as is.
func (d *Derivations) Apply(fields map[string]schema.Value, needs []string) (map[string]schema.Value, error) {
	if len(d.fields) == 0 {
		return fields, nil
	}

	wanted := make(map[string]bool, len(needs))
	for _, name := range needs {
		wanted[name] = true
	}
	// Later fields only depend on earlier ones, so one backward pass closes the set.
	required := make([]bool, len(d.fields))
	found := false
	for i := len(d.fields) - 1; i >= 0; i-- {
		if !wanted[d.fields[i].name] {
			continue
		}
		required[i] = true
		found = true
		for _, dep := range d.fields[i].expr.deps {
			wanted[dep] = true
		}
	}
	if !found {
		return fields, nil
	}

	out := maps.Clone(fields)
	if out == nil {
		out = make(map[string]schema.Value)
	}
	for i, f := range d.fields {
		if !required[i] {
			continue
		}
		v, err := f.expr.Eval(out)
		if err != nil {
			return nil, fmt.Errorf("derived field %s: %w", f.name, err)
		}
		out[f.name] = v
	}
	return out, nil
}
