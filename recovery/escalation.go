package recovery

import "context"

// ModelEscalation re-issues the original prompt unchanged. The caller puts
// the stronger model in Request.Model.
type ModelEscalation struct {
	gen Generator
}

// NewModelEscalation returns the model escalation strategy.
func NewModelEscalation(gen Generator) *ModelEscalation {
	return &ModelEscalation{gen: gen}
}

func (s *ModelEscalation) Name() string { return NameModelEscalation }

// Prompt does not apply without a model to escalate to.
func (s *ModelEscalation) Prompt(req Request) (string, bool) {
	if req.Model == "" {
		return "", false
	}
	return req.OriginalPrompt, true
}

func (s *ModelEscalation) Recover(ctx context.Context, req Request) (Outcome, error) {
	prompt, ok := s.Prompt(req)
	if !ok {
		return Outcome{}, ErrNotApplicable
	}
	return call(ctx, s.gen, prompt, req)
}
