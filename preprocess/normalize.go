package preprocess

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Synonyms maps a field to its alias table. Field keys are either an
// index-free dotted path ("lessons.exercise_type") or a bare field name
// ("exercise_type"); the path form wins when both exist. Alias keys are
// compared after folding, so "Case Study" and "case-study" hit the same entry.
type Synonyms map[string]map[string]string

// Rule names the step that produced a change.
type Rule string

const (
	RuleSynonym Rule = "synonym"
	RuleFold    Rule = "fold"
)

// Change is the outcome of normalizing one value.
type Change struct {
	Path        string `json:"path,omitempty"`
	Before      string `json:"before"`
	Value       string `json:"value"`
	Changed     bool   `json:"changed"`
	Rule        Rule   `json:"rule,omitempty"`
	Description string `json:"description,omitempty"`
}

// Normalize maps an enum value onto its canonical form. Values already in
// allowed or already canonical for the field are returned as-is; otherwise the
// folded value is looked up in the field's synonym table, and failing that
// matched against the folded allowed values. A value nothing matches is
// returned unchanged. Normalize is idempotent and never fails.
func Normalize(value, field string, allowed []string, synonyms Synonyms) Change {
	out := Change{Before: value, Value: value}
	table := synonyms.Table(field)

	if contains(allowed, value) || isCanonical(table, value) {
		return out
	}

	key := Fold(value)
	aliases := make([]string, 0, len(table))
	for alias := range table {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if Fold(alias) == key {
			return substitute(out, field, table[alias], RuleSynonym)
		}
	}

	var match string
	for _, a := range allowed {
		if Fold(a) == key {
			if match != "" && match != a {
				// Two allowed values fold together; refuse to guess.
				return out
			}
			match = a
		}
	}
	if match != "" {
		return substitute(out, field, match, RuleFold)
	}
	return out
}

// Table returns the alias table for field, trying the full index-free path
// first and then its last segment.
func (s Synonyms) Table(field string) map[string]string {
	if s == nil {
		return nil
	}
	if t, ok := s[field]; ok {
		return t
	}
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		return s[field[i+1:]]
	}
	return nil
}

// Fold lowercases and trims s and collapses every run of whitespace, hyphens
// and underscores into a single underscore.
func Fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

func substitute(c Change, field, value string, rule Rule) Change {
	if value == c.Before {
		return c
	}
	c.Value = value
	c.Changed = true
	c.Rule = rule
	c.Description = fmt.Sprintf("%s: %q -> %q (%s)", field, c.Before, value, rule)
	return c
}

func isCanonical(table map[string]string, value string) bool {
	for _, canonical := range table {
		if canonical == value {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, a := range values {
		if a == v {
			return true
		}
	}
	return false
}
