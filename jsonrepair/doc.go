// Package jsonrepair holds deterministic text-level repairs for LLM output
// that fails to parse as JSON. Each strategy runs independently against the
// original text; Repair returns the first result that parses.
package jsonrepair
