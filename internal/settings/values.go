package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Values is the flat mapping from setting name to value.
// It is populated by the host and not modified afterwards.
type Values map[string]any

// Get returns the value stored for name, verbatim
func (v Values) Get(name string) any {
	if v == nil {
		return nil
	}
	return v[name]
}

// Has reports whether a non-nil value is stored for name
func (v Values) Has(name string) bool {
	val, ok := v[name]
	return ok && val != nil
}

// Defaults returns a Values map holding each field's default
func Defaults(s *Schema) Values {
	out := make(Values, s.Len())
	for _, f := range s.Fields() {
		out[f.Name] = f.Default
	}
	return out
}

// ParseValue converts raw user input for the field.
// Fields without a parse function are parsed according to the kind of
// their default value; a nil default keeps the raw string.
func ParseValue(f Field, raw string) (any, error) {
	if f.Parse != nil {
		v, err := f.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return v, nil
	}

	switch f.Default.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return n, nil
	case float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return n, nil
	case []string:
		return splitList(raw), nil
	default:
		if f.Nargs == "+" {
			return splitList(raw), nil
		}
		return raw, nil
	}
}

// UnparseValue renders a value back to the string a user would type
func UnparseValue(f Field, value any) (string, error) {
	if value == nil {
		return "", nil
	}
	if f.Unparse != nil {
		s, err := f.Unparse(value)
		if err != nil {
			return "", fmt.Errorf("unparse %s: %w", f.Name, err)
		}
		return s, nil
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case []string:
		return strings.Join(v, ","), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// CheckRequired verifies that every required field has a value
func CheckRequired(s *Schema, values Values) error {
	var missing []string
	for _, f := range s.Fields() {
		if !f.Required {
			continue
		}
		if !values.Has(f.Name) {
			missing = append(missing, f.Name)
			continue
		}
		if str, ok := values[f.Name].(string); ok && str == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
}

// FlagName returns the CLI flag for a plugin setting,
// e.g. report-nanopub-use-test-server
func FlagName(plugin, field string) string {
	name := "report-" + plugin + "-" + field
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

// EnvName returns the environment variable for a plugin setting,
// e.g. SNAKEMAKE_REPORT_NANOPUB_PROFILE
func EnvName(plugin, field string) string {
	name := "SNAKEMAKE_REPORT_" + plugin + "_" + field
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
