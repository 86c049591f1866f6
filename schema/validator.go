package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

// Validate checks data against c and returns every violation found in a single
// pass. The result is empty iff data satisfies every declared constraint.
// Validate never panics; a nil contract accepts anything.
//
// Report order is stable: object properties in declaration order, then
// undeclared properties sorted by name, then array elements by index.
func Validate(data any, c *Contract) []Violation {
	out := make([]Violation, 0)
	if c == nil {
		return out
	}
	validateValue(data, c, "", &out)
	return out
}

func validateValue(v any, c *Contract, path string, out *[]Violation) {
	if c == nil {
		return
	}
	if v == nil {
		if !c.Nullable {
			*out = append(*out, Violation{Path: path, Kind: TypeMismatch, Expected: c.Label(), Received: nil})
		}
		return
	}

	switch c.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			mismatch(v, c, path, out)
			return
		}
		validateLength(s, c, path, out)
	case KindNumber:
		if _, ok := toFloat64(v); !ok {
			mismatch(v, c, path, out)
		}
	case KindInteger:
		if !isInteger(v) {
			mismatch(v, c, path, out)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			mismatch(v, c, path, out)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			mismatch(v, c, path, out)
			return
		}
		if !c.Allows(s) {
			*out = append(*out, Violation{Path: path, Kind: EnumViolation, Expected: c.Label(), Received: s})
		}
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			mismatch(v, c, path, out)
			return
		}
		validateObject(m, c, path, out)
	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			mismatch(v, c, path, out)
			return
		}
		validateArray(arr, c, path, out)
	default:
		*out = append(*out, Violation{
			Path:     path,
			Kind:     StructuralInvalid,
			Expected: fmt.Sprintf("a supported contract kind, got %q", c.Kind),
			Received: v,
		})
	}
}

// Allows reports whether s is one of the enum values.
func (c *Contract) Allows(s string) bool {
	for _, e := range c.Enum {
		if e == s {
			return true
		}
	}
	return false
}

func mismatch(v any, c *Contract, path string, out *[]Violation) {
	*out = append(*out, Violation{Path: path, Kind: TypeMismatch, Expected: c.Label(), Received: v})
}

func validateLength(s string, c *Contract, path string, out *[]Violation) {
	n := utf8.RuneCountInString(s)
	if c.MinLength != nil && n < *c.MinLength {
		*out = append(*out, Violation{
			Path:     path,
			Kind:     StructuralInvalid,
			Expected: fmt.Sprintf("string of at least %d characters", *c.MinLength),
			Received: s,
		})
	}
	if c.MaxLength != nil && n > *c.MaxLength {
		*out = append(*out, Violation{
			Path:     path,
			Kind:     StructuralInvalid,
			Expected: fmt.Sprintf("string of at most %d characters", *c.MaxLength),
			Received: s,
		})
	}
}

func validateObject(m map[string]any, c *Contract, path string, out *[]Violation) {
	declared := c.PropertyNames()
	for _, name := range declared {
		prop := c.Properties[name]
		fieldPath := JoinKey(path, name)
		val, present := m[name]
		// An explicit null counts as absent unless the property is nullable.
		if !present || (val == nil && (prop == nil || !prop.Nullable)) {
			if c.IsRequired(name) {
				*out = append(*out, Violation{Path: fieldPath, Kind: MissingRequired, Expected: prop.Label()})
			}
			continue
		}
		validateValue(val, prop, fieldPath, out)
	}

	// Required names without a declared property only need to be present.
	for _, name := range c.Required {
		if _, ok := c.Properties[name]; ok {
			continue
		}
		if val, ok := m[name]; !ok || val == nil {
			*out = append(*out, Violation{Path: JoinKey(path, name), Kind: MissingRequired, Expected: "any"})
		}
	}

	if c.AdditionalProperties {
		return
	}
	var extra []string
	for k := range m {
		if _, ok := c.Properties[k]; !ok && !c.IsRequired(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		*out = append(*out, Violation{Path: JoinKey(path, k), Kind: ExtraProperty, Expected: "no such property", Received: m[k]})
	}
}

func validateArray(arr []any, c *Contract, path string, out *[]Violation) {
	if c.MinItems != nil && len(arr) < *c.MinItems {
		*out = append(*out, Violation{
			Path:     path,
			Kind:     StructuralInvalid,
			Expected: fmt.Sprintf("at least %d items", *c.MinItems),
			Received: len(arr),
		})
	}
	if c.MaxItems != nil && len(arr) > *c.MaxItems {
		*out = append(*out, Violation{
			Path:     path,
			Kind:     StructuralInvalid,
			Expected: fmt.Sprintf("at most %d items", *c.MaxItems),
			Received: len(arr),
		})
	}
	if c.Items == nil {
		return
	}
	for i, item := range arr {
		validateValue(item, c.Items, JoinIndex(path, i), out)
	}
}

// toFloat64 converts any numeric type to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isInteger(v any) bool {
	if n, ok := v.(json.Number); ok {
		if _, err := n.Int64(); err == nil {
			return true
		}
	}
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f)
}
