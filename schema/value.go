package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the static type of a field or expression.
type Kind int

const (
	KindInvalid Kind = iota
	KindNumber
	KindBoolean
	KindString
	KindNumberList
)

// String returns the kind name used in error messages
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindNumberList:
		return "NumberList"
	default:
		return "Invalid"
	}
}

// ParseKind converts a schema type name to a Kind.
// Accepted names are case-insensitive: number, boolean (bool), string, number_list (numberlist).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "number":
		return KindNumber, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "string":
		return KindString, nil
	case "number_list", "numberlist":
		return KindNumberList, nil
	default:
		return KindInvalid, fmt.Errorf("invalid kind %q (must be one of: number, boolean, string, number_list)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindNumber:
		return []byte("number"), nil
	case KindBoolean:
		return []byte("boolean"), nil
	case KindString:
		return []byte("string"), nil
	case KindNumberList:
		return []byte("number_list"), nil
	default:
		return nil, fmt.Errorf("cannot marshal invalid kind")
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	return k.UnmarshalText([]byte(node.Value))
}

// Value is a tagged union holding one field value.
// The zero Value is invalid.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
	list []float64
}

// Number returns a Number value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Boolean returns a Boolean value.
func Boolean(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// String returns a String value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberList returns a NumberList value holding a copy of xs.
func NumberList(xs ...float64) Value {
	list := make([]float64, len(xs))
	copy(list, xs)
	return Value{kind: KindNumberList, list: list}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }
func (v Value) Num() float64 { return v.num }
func (v Value) Bool() bool { return v.b }
func (v Value) Str() string { return v.str }

// List returns a copy of the list elements.
func (v Value) List() []float64 {
	return slices.Clone(v.list)
}

// Len returns the number of list elements (0 for scalars).
func (v Value) Len() int {
	return len(v.list)
}

// String formats the value the way it appears in rendered query text.
// Numbers use the shortest decimal form, lists are comma-joined without spaces.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	case KindNumberList:
		parts := make([]string, len(v.list))
		for i, f := range v.list {
			parts[i] = formatNumber(f)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Equal reports whether two values have the same kind and content.
// Numbers compare exactly.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	case KindNumberList:
		return slices.Equal(v.list, o.list)
	default:
		return true
	}
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.str)
	case KindNumberList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the kind from the JSON token.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalYAML infers the kind from the YAML node.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// FromAny converts a decoded JSON/YAML value to a Value.
// Numbers, booleans, strings and lists of numbers are accepted.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	case []float64:
		return NumberList(x...), nil
	case []any:
		list := make([]float64, 0, len(x))
		for i, elem := range x {
			n, err := FromAny(elem)
			if err != nil || n.Kind() != KindNumber {
				return Value{}, fmt.Errorf("list element %d is not a number", i)
			}
			list = append(list, n.num)
		}
		return Value{kind: KindNumberList, list: list}, nil
	case nil:
		return Value{}, fmt.Errorf("null is not a valid field value")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Record is one company's data for one reporting period.
// ID is the company ID; Fields is never mutated by the engine.
type Record struct {
	ID     string           `json:"id" yaml:"id"`
	Fields map[string]Value `json:"fields" yaml:"fields"`
}

// Lookup returns the named field value.
func (r Record) Lookup(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}
