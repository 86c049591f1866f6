package regen

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/internal/audit"
	"github.com/maslennikov-ig/MC-2-sub003/internal/metrics"
	"github.com/maslennikov-ig/MC-2-sub003/internal/telemetry"
	"github.com/maslennikov-ig/MC-2-sub003/llm/tokenizer"
	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
	"github.com/maslennikov-ig/MC-2-sub003/recovery"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
	"github.com/maslennikov-ig/MC-2-sub003/semantic"
)

// Estimator predicts the input token count of a prompt. *llm.Generator
// satisfies it.
type Estimator interface {
	EstimateTokens(prompt, model string) int
}

// Recorder persists finished runs. *audit.Store satisfies it. Recording
// failures are logged and never change the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, run audit.Run) error
}

// Regenerator runs the validation and recovery pipeline. It is safe for
// concurrent use; every Regenerate call owns its own state.
type Regenerator struct {
	pre        *preprocess.Preprocessor
	matcher    *semantic.Matcher
	critique   recovery.Strategy
	partial    recovery.Strategy
	escalation recovery.Strategy
	estimator  Estimator

	metrics  *metrics.Collector
	tracer   trace.Tracer
	recorder Recorder
	logger   *zap.Logger
}

// Option configures a Regenerator.
type Option func(*Regenerator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Regenerator) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMatcher enables the semantic matching layer.
func WithMatcher(m *semantic.Matcher) Option {
	return func(r *Regenerator) { r.matcher = m }
}

// WithEstimator overrides the pre-call token estimator.
func WithEstimator(e Estimator) Option {
	return func(r *Regenerator) { r.estimator = e }
}

// WithMetrics records runs, attempts and violations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Regenerator) { r.metrics = c }
}

// WithTracer sets the tracer for run and layer spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Regenerator) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRecorder persists every finished run.
func WithRecorder(rec Recorder) Option {
	return func(r *Regenerator) { r.recorder = rec }
}

// WithStrategies replaces the LLM strategies. A nil argument keeps the
// default for that layer.
func WithStrategies(critique, partial, escalation recovery.Strategy) Option {
	return func(r *Regenerator) {
		if critique != nil {
			r.critique = critique
		}
		if partial != nil {
			r.partial = partial
		}
		if escalation != nil {
			r.escalation = escalation
		}
	}
}

// New builds a Regenerator whose LLM layers call gen. When gen also
// implements Estimator it is used for pre-call cost estimates.
func New(gen recovery.Generator, opts ...Option) *Regenerator {
	r := &Regenerator{
		critique:   recovery.NewCritiqueRevise(gen),
		partial:    recovery.NewPartialRegeneration(gen),
		escalation: recovery.NewModelEscalation(gen),
		tracer:     otel.Tracer(telemetry.InstrumentationName),
		logger:     zap.NewNop(),
	}
	if e, ok := gen.(Estimator); ok {
		r.estimator = e
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "regen"))
	r.pre = preprocess.New(r.logger)
	return r
}

// Regenerate turns raw into data conforming to contract, or fails. prompt is
// the generation prompt that produced raw; the LLM layers reuse it.
//
// On success the Result is validated. With cfg.AllowWarningFallback an
// exhausted run may instead return its best parsed value with
// Validated=false. Failures are *Error of kind BudgetExceeded or
// RegenerationExhausted. Cancelling ctx aborts the run with ctx's error.
func (r *Regenerator) Regenerate(ctx context.Context, raw string, contract *schema.Contract, prompt string, cfg Config) (*Result, error) {
	if contract == nil {
		return nil, errors.New("regen: contract is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "regen.Regenerate", trace.WithAttributes(
		attribute.String("regen.run_id", id),
		attribute.String("regen.tag", cfg.Tag),
		attribute.Int("regen.max_total_token_cost", cfg.MaxTotalTokenCost),
		attribute.Bool("regen.allow_warning_fallback", cfg.AllowWarningFallback),
	))
	defer span.End()

	ru := &run{
		r:        r,
		id:       id,
		cfg:      cfg,
		contract: contract,
		prompt:   prompt,
		text:     raw,
		model:    cfg.Model,
		round:    1,
		started:  time.Now(),
		logger: r.logger.With(
			zap.String("run_id", id),
			zap.String("tag", cfg.Tag),
		),
	}
	res, err := ru.loop(ctx)
	r.finish(ctx, ru, res, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("regen.layer_used", string(res.LayerUsed)),
			attribute.Bool("regen.validated", res.Validated),
			attribute.Int("regen.total_cost", res.TotalCost),
		)
	}
	return res, err
}

// finish logs, measures and records a completed run.
func (r *Regenerator) finish(ctx context.Context, ru *run, res *Result, err error) {
	outcome := outcomeOf(res, err)
	layer := string(ru.layerUsed)
	if res != nil {
		layer = string(res.LayerUsed)
	}
	elapsed := time.Since(ru.started)

	r.metrics.RecordRun(outcome, layer, elapsed, ru.totalCost)

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.String("layer_used", layer),
		zap.Bool("validated", res != nil && res.Validated),
		zap.Int("total_cost", ru.totalCost),
		zap.Int("attempts", len(ru.attempts)),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		ru.logger.Warn("regeneration failed", append(fields, zap.Error(err))...)
	} else {
		ru.logger.Info("regeneration finished", fields...)
	}

	if r.recorder == nil {
		return
	}
	rec := audit.Run{
		RunID:       ru.id,
		Outcome:     outcome,
		LayerUsed:   layer,
		Validated:   res != nil && res.Validated,
		TotalCost:   ru.totalCost,
		Model:       ru.cfg.Model,
		ContractTag: ru.cfg.Tag,
		StartedAt:   ru.started,
		Duration:    elapsed,
		Violations:  ru.initial,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, a := range ru.attempts {
		rec.Attempts = append(rec.Attempts, audit.Attempt{
			Layer:               string(a.Layer),
			Succeeded:           a.Succeeded,
			TokenCost:           a.TokenCost,
			RemainingViolations: len(a.RemainingViolations),
			Model:               a.Model,
			Detail:              a.Detail,
			StartedAt:           a.StartedAt,
			DurationMs:          a.DurationMs,
		})
	}
	// The run may have ended because ctx was cancelled; the record is still written.
	if err := r.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		ru.logger.Warn("failed to record run", zap.Error(err))
	}
}

// Run outcomes used in metrics and audit records.
const (
	OutcomeSuccess        = "success"
	OutcomeFallback       = "fallback"
	OutcomeExhausted      = "exhausted"
	OutcomeBudgetExceeded = "budget_exceeded"
	OutcomeCanceled       = "canceled"
	OutcomeError          = "error"
)

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Validated:
		return OutcomeSuccess
	case err == nil:
		return OutcomeFallback
	case errors.Is(err, ErrBudgetExceeded):
		return OutcomeBudgetExceeded
	case errors.Is(err, ErrRegenerationExhausted):
		return OutcomeExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

func (r *Regenerator) estimate(prompt, model string) int {
	if r.estimator != nil {
		return r.estimator.EstimateTokens(prompt, model)
	}
	return tokenizer.Count(model, prompt)
}
