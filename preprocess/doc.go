// Package preprocess implements the zero-cost normalization step that runs
// before validation: enum values are folded (case, surrounding whitespace,
// separators) and mapped through per-field synonym tables.
package preprocess
