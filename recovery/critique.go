package recovery

import (
	"context"
	"strings"
)

// CritiqueRevise shows the LLM its invalid output and the violation list and
// asks for a corrected full output.
type CritiqueRevise struct {
	gen Generator
}

// NewCritiqueRevise returns the critique-and-revise strategy.
func NewCritiqueRevise(gen Generator) *CritiqueRevise {
	return &CritiqueRevise{gen: gen}
}

func (s *CritiqueRevise) Name() string { return NameCritiqueRevise }

// Prompt always applies.
func (s *CritiqueRevise) Prompt(req Request) (string, bool) {
	var sb strings.Builder
	sb.WriteString("Original task:\n")
	sb.WriteString(req.OriginalPrompt)
	sb.WriteString("\n\nYour previous response did not conform to the required JSON schema.\n\n")
	sb.WriteString("Previous response:\n")
	sb.WriteString(req.BadOutput)
	sb.WriteString("\n\n")
	writeViolations(&sb, req)
	writeSchema(&sb, "JSON Schema", req.Contract)
	writeOutputRules(&sb, "the complete corrected JSON")
	sb.WriteString("5. Fix every listed error and keep all other content unchanged.\n")
	return sb.String(), true
}

func (s *CritiqueRevise) Recover(ctx context.Context, req Request) (Outcome, error) {
	prompt, _ := s.Prompt(req)
	return call(ctx, s.gen, prompt, req)
}
