// Package prompt renders the tutor's fixed prompt templates.
//
// A template declares its placeholders with single braces, e.g.
// "{language}". Rendering fails with ErrMissingVariable when a declared
// placeholder has no value, so a prompt is never sent with a hole in it.
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingVariable is returned when a declared placeholder is not supplied.
var ErrMissingVariable = errors.New("missing variable")

// Template is a parsed prompt template. It is immutable and safe for
// concurrent use.
type Template struct {
	name  string
	parts []part
	vars  []string
}

type part struct {
	text string
	name string // set for placeholders
}

// Vars maps placeholder names to their values.
type Vars map[string]string

// Parse parses text into a Template. "{{" and "}}" escape literal braces.
// A placeholder name is made of letters, digits and underscores.
func Parse(name, text string) (*Template, error) {
	t := &Template{name: name}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("template %s: unclosed placeholder at offset %d", name, i)
			}
			v := text[i+1 : i+1+end]
			if !validName(v) {
				return nil, fmt.Errorf("template %s: invalid placeholder %q", name, v)
			}
			flush()
			t.parts = append(t.parts, part{name: v})
			if !slices.Contains(t.vars, v) {
				t.vars = append(t.vars, v)
			}
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("template %s: unmatched '}' at offset %d", name, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is like Parse but panics on error. It is meant for the
// package-level templates whose text is fixed at compile time.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Variables returns the declared placeholders in order of first use.
func (t *Template) Variables() []string {
	return slices.Clone(t.vars)
}

// Render substitutes vars into the template. Every declared placeholder
// must be present in vars; an empty value is allowed. Extra keys are
// ignored.
func (t *Template) Render(vars Vars) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: %w: %s", t.name, ErrMissingVariable, strings.Join(missing, ", "))
	}

	var b strings.Builder
	for _, p := range t.parts {
		if p.name != "" {
			b.WriteString(vars[p.name])
		} else {
			b.WriteString(p.text)
		}
	}
	return b.String(), nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
