package regen

import (
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/recovery"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// Layer names a recovery layer.
type Layer string

const (
	LayerPreprocessNormalize Layer = "PreprocessNormalize"
	LayerSyntaxRepair        Layer = "SyntaxRepair"
	LayerSemanticMatch       Layer = "SemanticMatch"
	LayerCritiqueRevise      Layer = recovery.NameCritiqueRevise
	LayerPartialRegeneration Layer = recovery.NamePartialRegeneration
	LayerModelEscalation     Layer = recovery.NameModelEscalation
	LayerWarningFallback     Layer = "WarningFallback"
)

// UsesLLM reports whether the layer calls the LLM service.
func (l Layer) UsesLLM() bool {
	switch l {
	case LayerCritiqueRevise, LayerPartialRegeneration, LayerModelEscalation:
		return true
	}
	return false
}

// RepairAttempt records one layer run. RemainingViolations is the violation
// list after the layer's output was normalized and validated; it is nil when
// the output never parsed.
type RepairAttempt struct {
	Layer               Layer              `json:"layer"`
	StartedAt           time.Time          `json:"started_at"`
	DurationMs          int64              `json:"duration_ms"`
	TokenCost           int                `json:"token_cost"`
	Succeeded           bool               `json:"succeeded"`
	RemainingViolations []schema.Violation `json:"remaining_violations,omitempty"`
	Model               string             `json:"model,omitempty"`
	Detail              string             `json:"detail,omitempty"`
}

// Result is returned to the caller, who owns it exclusively.
type Result struct {
	Data      any             `json:"data"`
	Validated bool            `json:"validated"`
	LayerUsed Layer           `json:"layer_used"`
	Attempts  []RepairAttempt `json:"attempts"`
	TotalCost int             `json:"total_cost"`
	RunID     string          `json:"run_id"`
}

func copyAttempts(in []RepairAttempt) []RepairAttempt {
	if in == nil {
		return nil
	}
	out := make([]RepairAttempt, len(in))
	for i, a := range in {
		a.RemainingViolations = append([]schema.Violation(nil), a.RemainingViolations...)
		out[i] = a
	}
	return out
}
