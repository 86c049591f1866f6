package regen

import (
	"errors"
	"fmt"

	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindParseFailure: the text is not valid JSON at all.
	KindParseFailure ErrorKind = "ParseFailure"
	// KindSchemaViolation: the text parses but breaks the contract.
	KindSchemaViolation ErrorKind = "SchemaViolation"
	// KindServiceFailure: an LLM or embedding call failed or timed out.
	// Always absorbed inside a run.
	KindServiceFailure ErrorKind = "ServiceFailure"
	// KindBudgetExceeded: the cost ceiling ended the run.
	KindBudgetExceeded ErrorKind = "BudgetExceeded"
	// KindRegenerationExhausted: every layer ran and violations remain.
	KindRegenerationExhausted ErrorKind = "RegenerationExhausted"
)

// Sentinels for errors.Is on a returned *Error.
var (
	ErrBudgetExceeded        = errors.New("regen: token budget exceeded")
	ErrRegenerationExhausted = errors.New("regen: regeneration exhausted")
)

// Error is the failure returned by Regenerate. Only KindBudgetExceeded and
// KindRegenerationExhausted are returned to callers; the other kinds appear
// as causes and in attempt details.
type Error struct {
	Kind       ErrorKind          `json:"kind"`
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations,omitempty"`
	Attempts   []RepairAttempt    `json:"attempts,omitempty"`
	TotalCost  int                `json:"total_cost"`
	RunID      string             `json:"run_id,omitempty"`
	Cause      error              `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(e.Violations) > 0 {
		msg += fmt.Sprintf(" (%d violations)", len(e.Violations))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBudgetExceeded:
		return e.Kind == KindBudgetExceeded
	case ErrRegenerationExhausted:
		return e.Kind == KindRegenerationExhausted
	}
	return false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
