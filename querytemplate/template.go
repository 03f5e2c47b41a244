// Package querytemplate renders query text containing {{field}} placeholders.
//
// A placeholder is exactly "{{" + [a-z_][a-z0-9_]* + "}}". Anything else, including
// "{{ total_revenue }}", "{{Total}}" and a lone "{{", is literal text.
package querytemplate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liamcoop/prcycle/schema"
)

// ErrUnresolvedPlaceholder matches any *RenderError with errors.Is.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// RenderError reports a placeholder with no value to substitute.
type RenderError struct {
	Placeholder string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("unresolved placeholder: {{%s}}", e.Placeholder)
}

func (e *RenderError) Is(target error) bool {
	return target == ErrUnresolvedPlaceholder
}

// UnknownPlaceholderError reports a placeholder that names no known field.
type UnknownPlaceholderError struct {
	Name string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("template references unknown field: %s", e.Name)
}

type segment struct {
	text        string
	placeholder bool
}

// Template is a parsed template. It is immutable and safe for concurrent use.
type Template struct {
	source   string
	segments []segment
	names    []string
}

// Parse splits text into literal segments and placeholders. It never fails:
// text that does not form a placeholder is kept literally.
func Parse(text string) *Template {
	t := &Template{source: text}
	seen := make(map[string]bool)

	var lit strings.Builder
	i := 0
	for i < len(text) {
		if name, width := placeholderAt(text, i); width > 0 {
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{text: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{text: name, placeholder: true})
			if !seen[name] {
				seen[name] = true
				t.names = append(t.names, name)
			}
			i += width
			continue
		}
		lit.WriteByte(text[i])
		i++
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{text: lit.String()})
	}
	return t
}

// placeholderAt returns the placeholder name starting at text[i] and its total width,
// or a zero width if none starts there. A token wrapped in further braces, such as
// {{{x}}}, is literal text.
func placeholderAt(text string, i int) (string, int) {
	if !strings.HasPrefix(text[i:], "{{") || (i > 0 && text[i-1] == '{') {
		return "", 0
	}
	start := i + 2
	j := start
	for j < len(text) {
		c := text[j]
		if c == '_' || (c >= 'a' && c <= 'z') || (j > start && c >= '0' && c <= '9') {
			j++
			continue
		}
		break
	}
	if j == start || !strings.HasPrefix(text[j:], "}}") || strings.HasPrefix(text[j+2:], "}") {
		return "", 0
	}
	return text[start:j], j + 2 - i
}

// Source returns the original template text.
func (t *Template) Source() string { return t.source }

// Placeholders returns the distinct placeholder names in order of first use.
func (t *Template) Placeholders() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Render substitutes every placeholder with the field's String form.
// Substituted values are not scanned again for placeholders.
func (t *Template) Render(fields map[string]schema.Value) (string, error) {
	var b strings.Builder
	b.Grow(len(t.source))
	for _, seg := range t.segments {
		if !seg.placeholder {
			b.WriteString(seg.text)
			continue
		}
		v, ok := fields[seg.text]
		if !ok || !v.IsValid() {
			return "", &RenderError{Placeholder: seg.text}
		}
		b.WriteString(v.String())
	}
	return b.String(), nil
}

// Render parses and renders text in one step.
func Render(text string, fields map[string]schema.Value) (string, error) {
	return Parse(text).Render(fields)
}

// CheckFields returns an *UnknownPlaceholderError for the first placeholder
// that known rejects.
func CheckFields(t *Template, known func(name string) bool) error {
	for _, name := range t.names {
		if !known(name) {
			return &UnknownPlaceholderError{Name: name}
		}
	}
	return nil
}
