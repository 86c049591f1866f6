package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ViolationKind classifies a deviation from a contract.
type ViolationKind string

const (
	TypeMismatch      ViolationKind = "TypeMismatch"
	EnumViolation     ViolationKind = "EnumViolation"
	MissingRequired   ViolationKind = "MissingRequired"
	ExtraProperty     ViolationKind = "ExtraProperty"
	StructuralInvalid ViolationKind = "StructuralInvalid"
)

// Violation is a single recorded deviation between data and its contract.
type Violation struct {
	Path     string        `json:"path"`
	Kind     ViolationKind `json:"kind"`
	Expected string        `json:"expected"`
	Received any           `json:"received,omitempty"`
}

// String renders the violation on one line.
func (v Violation) String() string {
	switch v.Kind {
	case MissingRequired:
		return fmt.Sprintf("%s: missing required field (expected %s)", displayPath(v.Path), v.Expected)
	case ExtraProperty:
		return fmt.Sprintf("%s: property is not allowed", displayPath(v.Path))
	default:
		return fmt.Sprintf("%s: %s: expected %s, got %s", displayPath(v.Path), v.Kind, v.Expected, renderValue(v.Received))
	}
}

// Render formats a violation list as a numbered block for prompts and errors.
func Render(violations []Violation) string {
	var b strings.Builder
	for i, v := range violations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, v.String())
	}
	return b.String()
}

// OnlyKind reports whether every violation has the given kind. An empty list
// returns false.
func OnlyKind(violations []Violation, kind ViolationKind) bool {
	if len(violations) == 0 {
		return false
	}
	for _, v := range violations {
		if v.Kind != kind {
			return false
		}
	}
	return true
}

// Paths returns the violation paths in order.
func Paths(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Path
	}
	return out
}

func renderValue(v any) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const limit = 120
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
