package settings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingRequired is returned when a required setting has no value.
var ErrMissingRequired = errors.New("missing required setting")

// ParseFunc converts user input into the setting's value
type ParseFunc func(raw string) (any, error)

// UnparseFunc converts a parsed value back into its string form
type UnparseFunc func(value any) (string, error)

// Field describes a single declared setting.
//
// Fields are declared explicitly when a plugin registers itself; nothing is
// discovered by reflection at render time.
type Field struct {
	Name     string      `json:"name"`
	Help     string      `json:"help"`
	EnvVar   bool        `json:"env_var,omitempty"`  // Also readable from SNAKEMAKE_REPORT_<PLUGIN>_<NAME>
	Required bool        `json:"required,omitempty"` // Must be set when the reporter is in use
	Default  any         `json:"default,omitempty"`
	Nargs    string      `json:"nargs,omitempty"` // "+" accepts multiple values
	Parse    ParseFunc   `json:"-"`
	Unparse  UnparseFunc `json:"-"`
}

// HasCodec reports whether the field carries a parse/unparse pair
func (f Field) HasCodec() bool {
	return f.Parse != nil && f.Unparse != nil
}

// Schema is an ordered set of declared fields
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema creates a schema from fields in declaration order.
// Duplicate names keep the first declaration; Validate reports them.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if _, exists := s.index[f.Name]; exists {
			s.fields = append(s.fields, f)
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields returns a copy of the declared fields in order
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Len returns the number of declared fields
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Validate checks the declarations themselves
func (s *Schema) Validate() error {
	if s == nil {
		return nil
	}

	var problems []string
	seen := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		switch {
		case f.Name == "":
			problems = append(problems, "field with empty name")
		case seen[f.Name]:
			problems = append(problems, fmt.Sprintf("%s: declared twice", f.Name))
		case f.Parse != nil && f.Unparse == nil:
			problems = append(problems, fmt.Sprintf("%s: parse function without unparse function", f.Name))
		case f.Unparse != nil && f.Parse == nil:
			problems = append(problems, fmt.Sprintf("%s: unparse function without parse function", f.Name))
		case f.Nargs != "" && f.Nargs != "+":
			problems = append(problems, fmt.Sprintf("%s: unsupported nargs %q", f.Name, f.Nargs))
		}
		seen[f.Name] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid settings schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Metadata returns each field keyed by name, the first declaration
// winning for duplicates. Callers build it once and read it afterwards.
func (s *Schema) Metadata() map[string]Field {
	if s == nil {
		return map[string]Field{}
	}
	out := make(map[string]Field, len(s.fields))
	for _, f := range s.fields {
		if _, ok := out[f.Name]; ok {
			continue
		}
		out[f.Name] = f
	}
	return out
}

// Names returns field names in declaration order
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}
