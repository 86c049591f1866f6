package regen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/jsonrepair"
	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
	"github.com/maslennikov-ig/MC-2-sub003/recovery"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

type state int

const (
	stateNormalizing state = iota
	stateValidating
	stateSyntaxRepairing
	stateSemanticMatching
	stateCritiqueRevising
	statePartialRegenerating
	stateEscalating
	stateConformant
	stateExhausted
)

func (s state) String() string {
	switch s {
	case stateNormalizing:
		return "Normalizing"
	case stateValidating:
		return "Validating"
	case stateSyntaxRepairing:
		return "SyntaxRepairing"
	case stateSemanticMatching:
		return "SemanticMatching"
	case stateCritiqueRevising:
		return "CritiqueRevising"
	case statePartialRegenerating:
		return "PartialRegenerating"
	case stateEscalating:
		return "Escalating"
	case stateConformant:
		return "Conformant"
	case stateExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// run is the state of one Regenerate call. It is owned by a single goroutine.
type run struct {
	r        *Regenerator
	id       string
	cfg      Config
	contract *schema.Contract
	prompt   string
	logger   *zap.Logger
	started  time.Time

	// Current candidate. data is set only when parsed is true.
	text       string
	data       any
	parsed     bool
	parseErr   error
	violations []schema.Violation
	changes    []preprocess.Change

	// Last parsed value, returned by the warning fallback.
	best           any
	bestViolations []schema.Violation
	haveBest       bool

	initial   []schema.Violation
	validated bool

	layerUsed Layer
	attempts  []RepairAttempt
	totalCost int
	budgetHit bool

	round        int
	model        string
	critiqueUsed int
	partialUsed  int
	escalated    bool

	// Cheap layers run at most once per candidate.
	syntaxTried   bool
	semanticTried bool

	// pending is the attempt whose output is being normalized and validated.
	pending  *RepairAttempt
	modified bool
}

func (ru *run) loop(ctx context.Context) (*Result, error) {
	ru.begin(LayerPreprocessNormalize)
	st := stateNormalizing
	for {
		if err := ctx.Err(); err != nil {
			return nil, ru.canceled(err)
		}
		prev := st
		var err error
		switch st {
		case stateNormalizing:
			st = ru.normalize()
		case stateValidating:
			st = ru.validate()
		case stateSyntaxRepairing:
			st = ru.syntaxRepair()
		case stateSemanticMatching:
			st, err = ru.semanticMatch(ctx)
		case stateCritiqueRevising:
			st, err = ru.recover(ctx, ru.r.critique, LayerCritiqueRevise)
		case statePartialRegenerating:
			st, err = ru.recover(ctx, ru.r.partial, LayerPartialRegeneration)
		case stateEscalating:
			st, err = ru.recover(ctx, ru.r.escalation, LayerModelEscalation)
		case stateConformant:
			return ru.success(), nil
		case stateExhausted:
			return ru.exhausted()
		}
		if err != nil {
			return nil, err
		}
		ru.logger.Debug("state transition",
			zap.Stringer("from", prev),
			zap.Stringer("to", st),
			zap.Int("round", ru.round),
		)
	}
}

// normalize parses the current text and normalizes its enum values.
func (ru *run) normalize() state {
	v, err := schema.Parse(schema.Extract(ru.text))
	if err != nil {
		ru.data, ru.parsed, ru.parseErr, ru.violations = nil, false, err, nil
		return stateValidating
	}
	ru.data, ru.changes = ru.r.pre.Apply(v, ru.contract, ru.cfg.EnumSynonyms)
	ru.parsed, ru.parseErr = true, nil
	return stateValidating
}

func (ru *run) validate() state {
	if ru.parsed {
		ru.violations = schema.Validate(ru.data, ru.contract)
		ru.best, ru.bestViolations, ru.haveBest = ru.data, ru.violations, true
		if !ru.validated {
			ru.validated = true
			ru.initial = append([]schema.Violation(nil), ru.violations...)
			for _, v := range ru.violations {
				ru.r.metrics.RecordViolation(schema.Pattern(v.Path), string(v.Kind))
			}
		}
	}
	ru.settle()

	if ru.parsed && len(ru.violations) == 0 {
		return stateConformant
	}
	return ru.next()
}

// next picks the cheapest layer that has not been used up for the current
// candidate and round.
func (ru *run) next() state {
	if !ru.parsed && !ru.syntaxTried {
		return stateSyntaxRepairing
	}
	if ru.parsed && !ru.semanticTried && ru.r.matcher != nil &&
		schema.OnlyKind(ru.violations, schema.EnumViolation) {
		return stateSemanticMatching
	}
	if ru.critiqueUsed < ru.cfg.MaxAttemptsPerLayer {
		return stateCritiqueRevising
	}
	if ru.round == 1 && ru.partialUsed < ru.cfg.MaxAttemptsPerLayer {
		return statePartialRegenerating
	}
	if !ru.escalated && ru.cfg.EscalationModel != "" {
		return stateEscalating
	}
	return stateExhausted
}

func (ru *run) syntaxRepair() state {
	ru.syntaxTried = true
	ru.begin(LayerSyntaxRepair)

	res := jsonrepair.Repair(schema.Extract(ru.text))
	if !res.OK {
		ru.pending.Detail = "no repair strategy produced valid JSON"
		ru.settleFailure()
		return ru.next()
	}
	ru.pending.Detail = "strategy=" + string(res.Strategy)
	ru.text = res.Text
	return stateNormalizing
}

func (ru *run) semanticMatch(ctx context.Context) (state, error) {
	ru.semanticTried = true
	ru.begin(LayerSemanticMatch)

	ctx, span := ru.r.tracer.Start(ctx, "regen.SemanticMatch")
	defer span.End()
	callCtx, cancel := context.WithTimeout(ctx, ru.cfg.CallTimeout)
	defer cancel()

	data := schema.Clone(ru.data)
	var notes []string
	substituted := 0
	for _, v := range ru.violations {
		value, _ := schema.Lookup(data, v.Path)
		s, ok := value.(string)
		sub := ru.contract.At(v.Path)
		if !ok || sub == nil || len(sub.Enum) == 0 {
			continue
		}

		m := ru.r.matcher.Match(callCtx, s, sub.Enum, ru.cfg.SemanticMatchThreshold)
		if err := ctx.Err(); err != nil {
			return stateExhausted, ru.canceled(err)
		}
		if m.Err != nil {
			svc := &Error{Kind: KindServiceFailure, Message: "embedding unavailable", Cause: m.Err}
			notes = append(notes, fmt.Sprintf("%s: %v", v.Path, svc))
			continue
		}
		if !m.Accepted {
			notes = append(notes, fmt.Sprintf("%s: %q closest %q (%.2f) below threshold", v.Path, s, m.Matched, m.Similarity))
			continue
		}

		next, err := schema.Set(data, v.Path, m.Matched)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", v.Path, err))
			continue
		}
		data = next
		substituted++
		notes = append(notes, fmt.Sprintf("%s: %q -> %q (%.2f)", v.Path, s, m.Matched, m.Similarity))
		ru.logger.Info("enum value matched semantically",
			zap.String("path", v.Path),
			zap.String("before", s),
			zap.String("after", m.Matched),
			zap.Float64("similarity", m.Similarity),
		)
	}
	span.SetAttributes(attribute.Int("regen.substituted", substituted))

	ru.pending.Detail = strings.Join(notes, "; ")
	ru.modified = substituted > 0
	if ru.modified {
		ru.data = data
	}
	return stateValidating, nil
}

// recover runs one LLM strategy under the cost ceiling.
func (ru *run) recover(ctx context.Context, s recovery.Strategy, layer Layer) (state, error) {
	model := ru.model
	switch layer {
	case LayerCritiqueRevise:
		ru.critiqueUsed++
	case LayerPartialRegeneration:
		ru.partialUsed++
	case LayerModelEscalation:
		ru.escalated = true
		model = ru.cfg.EscalationModel
	}

	req := ru.request(model)
	prompt, ok := s.Prompt(req)
	if !ok {
		ru.logger.Debug("layer not applicable", zap.String("layer", string(layer)))
		if layer == LayerPartialRegeneration {
			ru.partialUsed = ru.cfg.MaxAttemptsPerLayer
		}
		return ru.next(), nil
	}

	maxTokens, ok := ru.admit(prompt, model)
	if !ok {
		ru.budgetHit = true
		ru.logger.Info("cost ceiling reached, skipping llm layers",
			zap.String("layer", string(layer)),
			zap.Int("total_cost", ru.totalCost),
			zap.Int("max_total_token_cost", ru.cfg.MaxTotalTokenCost),
		)
		return stateExhausted, nil
	}
	req.MaxTokens = maxTokens

	ru.begin(layer)
	ru.pending.Model = model

	spanCtx, span := ru.r.tracer.Start(ctx, "regen."+string(layer), trace.WithAttributes(
		attribute.String("regen.model", model),
		attribute.Int("regen.max_tokens", maxTokens),
		attribute.Int("regen.round", ru.round),
	))
	callCtx, cancel := context.WithTimeout(spanCtx, ru.cfg.CallTimeout)
	out, err := s.Recover(callCtx, req)
	cancel()
	span.SetAttributes(attribute.Int("regen.token_cost", out.TokenCost))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	ru.totalCost += out.TokenCost
	ru.pending.TokenCost = out.TokenCost
	if out.Model != "" {
		ru.pending.Model = out.Model
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return stateExhausted, ru.canceled(ctxErr)
	}
	if ru.totalCost > ru.cfg.MaxTotalTokenCost {
		ru.pending.Detail = fmt.Sprintf("reported usage of %d tokens pushed total cost to %d", out.TokenCost, ru.totalCost)
		ru.settleFailure()
		return stateExhausted, ru.overBudget()
	}
	if err != nil {
		svc := &Error{Kind: KindServiceFailure, Message: string(layer) + " failed", Cause: err}
		ru.pending.Detail = svc.Error()
		ru.logger.Warn("recovery layer failed",
			zap.String("layer", string(layer)),
			zap.String("model", model),
			zap.Error(err),
		)
		ru.settleFailure()
		return ru.next(), nil
	}

	if layer == LayerModelEscalation {
		ru.round = 2
		ru.model = model
		ru.critiqueUsed = 0
	}
	if out.Target != "" {
		ru.pending.Detail = "target=" + out.Target
	}
	ru.text = out.Text
	ru.syntaxTried, ru.semanticTried = false, false
	return stateNormalizing, nil
}

// admit checks the cost ceiling for a prompt and returns the output cap to
// send, clamped so that input plus output fits the remaining budget.
func (ru *run) admit(prompt, model string) (int, bool) {
	remaining := ru.cfg.MaxTotalTokenCost - ru.totalCost
	input := ru.r.estimate(prompt, model)

	maxTokens := ru.cfg.MaxOutputTokens
	if room := remaining - input; room < maxTokens {
		maxTokens = room
	}
	floor := minOutputTokens
	if ru.cfg.MaxOutputTokens < floor {
		floor = ru.cfg.MaxOutputTokens
	}
	if maxTokens < floor || maxTokens <= 0 {
		return 0, false
	}
	return maxTokens, true
}

func (ru *run) request(model string) recovery.Request {
	req := recovery.Request{
		OriginalPrompt: ru.prompt,
		BadOutput:      ru.text,
		Parsed:         ru.parsed,
		Contract:       ru.contract,
		Model:          model,
	}
	if ru.parsed {
		req.Data = ru.data
		req.Violations = ru.violations
		if s, err := schema.Marshal(ru.data); err == nil {
			req.BadOutput = s
		}
	} else if ru.parseErr != nil {
		req.ParseError = ru.parseErr.Error()
	}
	return req
}

// ===== attempts =====

func (ru *run) begin(layer Layer) {
	ru.pending = &RepairAttempt{Layer: layer, StartedAt: time.Now()}
	ru.modified = true
	ru.changes = nil
}

// settle completes the pending attempt against the freshly validated candidate.
func (ru *run) settle() {
	a := ru.pending
	if a == nil {
		return
	}
	ru.pending = nil
	a.DurationMs = time.Since(a.StartedAt).Milliseconds()

	if !ru.parsed {
		a.Detail = joinDetail(a.Detail, "not valid JSON: "+ru.parseErr.Error())
		ru.record(*a)
		return
	}
	a.RemainingViolations = append([]schema.Violation(nil), ru.violations...)
	a.Succeeded = len(ru.violations) == 0
	if len(ru.changes) > 0 {
		a.Detail = joinDetail(a.Detail, fmt.Sprintf("normalized %d enum values", len(ru.changes)))
	}
	if ru.modified {
		ru.layerUsed = a.Layer
	}
	ru.record(*a)
}

// settleFailure completes the pending attempt when the layer produced no
// candidate. The current candidate is unchanged.
func (ru *run) settleFailure() {
	a := ru.pending
	if a == nil {
		return
	}
	ru.pending = nil
	a.DurationMs = time.Since(a.StartedAt).Milliseconds()
	a.Succeeded = false
	a.RemainingViolations = append([]schema.Violation(nil), ru.violations...)
	ru.record(*a)
}

func (ru *run) record(a RepairAttempt) {
	ru.attempts = append(ru.attempts, a)
	ru.r.metrics.RecordAttempt(string(a.Layer), a.Model, a.Succeeded,
		time.Duration(a.DurationMs)*time.Millisecond, a.TokenCost)
	ru.logger.Debug("attempt finished",
		zap.String("layer", string(a.Layer)),
		zap.Bool("succeeded", a.Succeeded),
		zap.Int("token_cost", a.TokenCost),
		zap.Int("remaining_violations", len(a.RemainingViolations)),
		zap.String("detail", a.Detail),
	)
}

func joinDetail(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// ===== terminal states =====

func (ru *run) success() *Result {
	return &Result{
		Data:      ru.data,
		Validated: true,
		LayerUsed: ru.layerUsed,
		Attempts:  copyAttempts(ru.attempts),
		TotalCost: ru.totalCost,
		RunID:     ru.id,
	}
}

func (ru *run) exhausted() (*Result, error) {
	if ru.cfg.AllowWarningFallback && ru.haveBest && rootMatches(ru.bestViolations) {
		ru.record(RepairAttempt{
			Layer:               LayerWarningFallback,
			StartedAt:           time.Now(),
			RemainingViolations: append([]schema.Violation(nil), ru.bestViolations...),
			Detail:              fmt.Sprintf("returning unvalidated value with %d violations", len(ru.bestViolations)),
		})
		ru.layerUsed = LayerWarningFallback
		ru.logger.Warn("returning unvalidated output",
			zap.Int("violations", len(ru.bestViolations)),
			zap.Strings("paths", schema.Paths(ru.bestViolations)),
		)
		return &Result{
			Data:      ru.best,
			Validated: false,
			LayerUsed: LayerWarningFallback,
			Attempts:  copyAttempts(ru.attempts),
			TotalCost: ru.totalCost,
			RunID:     ru.id,
		}, nil
	}

	e := &Error{
		Kind:       KindRegenerationExhausted,
		Message:    "every recovery layer ran and the output still does not satisfy the contract",
		Violations: append([]schema.Violation(nil), ru.bestViolations...),
		Attempts:   copyAttempts(ru.attempts),
		TotalCost:  ru.totalCost,
		RunID:      ru.id,
	}
	if ru.budgetHit {
		e.Kind = KindBudgetExceeded
		e.Message = fmt.Sprintf("token budget of %d cannot cover the next llm call (spent %d)", ru.cfg.MaxTotalTokenCost, ru.totalCost)
	}
	if ru.haveBest {
		e.Cause = &Error{Kind: KindSchemaViolation, Message: "output does not satisfy the contract", Violations: e.Violations}
	} else {
		e.Cause = &Error{Kind: KindParseFailure, Message: "output never parsed as JSON", Cause: ru.parseErr}
	}
	return nil, e
}

func (ru *run) overBudget() error {
	return &Error{
		Kind:       KindBudgetExceeded,
		Message:    fmt.Sprintf("total cost %d exceeds ceiling %d", ru.totalCost, ru.cfg.MaxTotalTokenCost),
		Violations: append([]schema.Violation(nil), ru.violations...),
		Attempts:   copyAttempts(ru.attempts),
		TotalCost:  ru.totalCost,
		RunID:      ru.id,
	}
}

func (ru *run) canceled(err error) error {
	if ru.pending != nil {
		ru.pending.Detail = joinDetail(ru.pending.Detail, "canceled")
		ru.settleFailure()
	}
	return fmt.Errorf("regen: run %s canceled: %w", ru.id, err)
}

// rootMatches reports whether the value's top-level type is the declared one.
func rootMatches(violations []schema.Violation) bool {
	for _, v := range violations {
		if v.Path == "" && v.Kind == schema.TypeMismatch {
			return false
		}
	}
	return true
}
