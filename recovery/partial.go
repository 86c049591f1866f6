package recovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/maslennikov-ig/MC-2-sub003/jsonrepair"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// PartialRegeneration regenerates only the smallest subtree that encloses
// every violation and splices the answer back into the document.
type PartialRegeneration struct {
	gen Generator
}

// NewPartialRegeneration returns the partial regeneration strategy.
func NewPartialRegeneration(gen Generator) *PartialRegeneration {
	return &PartialRegeneration{gen: gen}
}

func (s *PartialRegeneration) Name() string { return NamePartialRegeneration }

// Target returns the path of the smallest subtree enclosing every violation.
// A value-level violation targets its own path; a missing or unexpected
// property targets the object that holds it. ok is false when the subtree is
// the document root, when the candidate never parsed, or when the path is not
// addressable in both data and contract.
func Target(req Request) (string, bool) {
	if !req.Parsed || req.Data == nil || len(req.Violations) == 0 || req.Contract == nil {
		return "", false
	}
	paths := make([]string, len(req.Violations))
	for i, v := range req.Violations {
		paths[i] = violationSubtree(v)
	}
	target := schema.CommonAncestor(paths)
	if target == "" {
		return "", false
	}
	if _, found := schema.Lookup(req.Data, target); !found {
		return "", false
	}
	if req.Contract.At(target) == nil {
		return "", false
	}
	return target, true
}

func violationSubtree(v schema.Violation) string {
	switch v.Kind {
	case schema.MissingRequired, schema.ExtraProperty:
		return schema.Parent(v.Path)
	default:
		return v.Path
	}
}

func (s *PartialRegeneration) Prompt(req Request) (string, bool) {
	target, ok := Target(req)
	if !ok {
		return "", false
	}
	doc, err := schema.Marshal(req.Data)
	if err != nil {
		return "", false
	}
	current, _ := schema.Lookup(req.Data, target)
	sub, err := schema.Marshal(current)
	if err != nil {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString("Original task:\n")
	sb.WriteString(req.OriginalPrompt)
	fmt.Fprintf(&sb, "\n\nThe JSON document below is mostly correct, but the value at path %q violates the schema.\n\n", target)
	sb.WriteString("Full document (context only, do not repeat it):\n")
	sb.WriteString(doc)
	fmt.Fprintf(&sb, "\n\nCurrent value at %q:\n", target)
	sb.WriteString(sub)
	sb.WriteString("\n\n")
	writeViolations(&sb, req)
	writeSchema(&sb, fmt.Sprintf("JSON Schema for %q", target), req.Contract.At(target))
	writeOutputRules(&sb, fmt.Sprintf("the corrected JSON value for %q", target))
	return sb.String(), true
}

func (s *PartialRegeneration) Recover(ctx context.Context, req Request) (Outcome, error) {
	prompt, ok := s.Prompt(req)
	if !ok {
		return Outcome{}, ErrNotApplicable
	}
	target, _ := Target(req)

	out, err := call(ctx, s.gen, prompt, req)
	if err != nil {
		return out, err
	}
	out.Target = target

	value, err := parseFragment(out.Text)
	if err != nil {
		return out, fmt.Errorf("%w: subtree %q: %v", ErrUnusableResponse, target, err)
	}

	data, err := schema.Set(schema.Clone(req.Data), target, value)
	if err != nil {
		return out, fmt.Errorf("%w: splice %q: %v", ErrUnusableResponse, target, err)
	}
	text, err := schema.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrUnusableResponse, err)
	}
	out.Text = text
	return out, nil
}

// parseFragment decodes the subtree the LLM returned, falling back to syntax
// repair when it does not parse as-is.
func parseFragment(text string) (any, error) {
	// Scalars may contain braces that Extract would cut at.
	if v, err := schema.Parse(strings.TrimSpace(text)); err == nil {
		return v, nil
	}
	text = schema.Extract(text)
	v, err := schema.Parse(text)
	if err == nil {
		return v, nil
	}
	if r := jsonrepair.Repair(text); r.OK {
		return schema.Parse(r.Text)
	}
	return nil, err
}
