package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// Strategy names, also used as layer names by the orchestrator.
const (
	NameCritiqueRevise      = "CritiqueRevise"
	NamePartialRegeneration = "PartialRegeneration"
	NameModelEscalation     = "ModelEscalation"
)

var (
	// ErrNotApplicable is returned by Recover when the strategy cannot be
	// used for the request. No LLM call was made.
	ErrNotApplicable = errors.New("recovery strategy not applicable")

	// ErrUnusableResponse means the LLM answered but the answer could not be
	// turned into a candidate. The call's cost is still reported.
	ErrUnusableResponse = errors.New("llm response is unusable")
)

// Generator is the LLM service as seen by the strategies. *llm.Generator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, maxTokens int) (*llm.Generation, error)
}

// Request carries everything a strategy may use. Data is nil and Parsed is
// false when the candidate never parsed as JSON.
type Request struct {
	OriginalPrompt string
	BadOutput      string
	Data           any
	Parsed         bool
	ParseError     string
	Violations     []schema.Violation
	Contract       *schema.Contract
	Model          string
	MaxTokens      int
}

// Outcome is the result of one strategy call. TokenCost is set whenever an
// LLM call was made, including when Recover also returns an error.
type Outcome struct {
	Text      string
	TokenCost int
	Model     string
	Estimated bool
	// Target is the regenerated subtree path, set by PartialRegeneration.
	Target string
}

// Strategy is one LLM recovery layer.
type Strategy interface {
	Name() string
	// Prompt builds the exact prompt Recover would send. ok is false when
	// the strategy does not apply to req.
	Prompt(req Request) (prompt string, ok bool)
	Recover(ctx context.Context, req Request) (Outcome, error)
}

// call sends prompt and converts the generation into an Outcome.
func call(ctx context.Context, gen Generator, prompt string, req Request) (Outcome, error) {
	if gen == nil {
		return Outcome{}, errors.New("recovery: nil generator")
	}
	g, err := gen.Generate(ctx, prompt, req.Model, req.MaxTokens)
	if err != nil {
		return Outcome{}, err
	}
	if g == nil {
		return Outcome{}, fmt.Errorf("%w: no generation", ErrUnusableResponse)
	}
	out := Outcome{
		Text:      g.Text,
		TokenCost: g.Cost(),
		Model:     g.Model,
		Estimated: g.Estimated,
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, fmt.Errorf("%w: empty text", ErrUnusableResponse)
	}
	return out, nil
}

func writeOutputRules(sb *strings.Builder, what string) {
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	fmt.Fprintf(sb, "1. Respond with %s only, conforming to the schema above.\n", what)
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Do NOT wrap the JSON in markdown code blocks.\n")
	sb.WriteString("4. Use only the exact allowed values for enum fields.\n")
}

func writeSchema(sb *strings.Builder, title string, c *schema.Contract) {
	sb.WriteString(title)
	sb.WriteString(":\n```json\n")
	sb.WriteString(c.Describe())
	sb.WriteString("\n```\n\n")
}

func writeViolations(sb *strings.Builder, req Request) {
	if !req.Parsed {
		sb.WriteString("The previous response is not valid JSON")
		if req.ParseError != "" {
			sb.WriteString(": ")
			sb.WriteString(req.ParseError)
		}
		sb.WriteString(".\n\n")
		return
	}
	sb.WriteString("Validation errors:\n")
	sb.WriteString(schema.Render(req.Violations))
	sb.WriteString("\n")
}
