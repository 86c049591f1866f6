package regen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/maslennikov-ig/MC-2-sub003/internal/audit"
	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
	"github.com/maslennikov-ig/MC-2-sub003/semantic"
	"github.com/maslennikov-ig/MC-2-sub003/testutil"
	"github.com/maslennikov-ig/MC-2-sub003/testutil/mocks"
)

const (
	coursePrompt = "Generate a course outline."

	goodDoc      = `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"quiz"}]}`
	badDoc       = `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"lab"}]}`
	goodFragment = `"quiz"`
	badFragment  = `"lab"`
)

// fixedEstimator makes budget arithmetic independent of the tokenizer.
type fixedEstimator int

func (e fixedEstimator) EstimateTokens(string, string) int { return int(e) }

// captureRecorder keeps every recorded run in memory.
type captureRecorder struct {
	mu   sync.Mutex
	runs []audit.Run
	err  error
}

func (r *captureRecorder) Record(_ context.Context, run audit.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

func (r *captureRecorder) last(t *testing.T) audit.Run {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.runs)
	return r.runs[len(r.runs)-1]
}

func lessonContract() *schema.Contract {
	lesson := schema.NewObject().
		AddProperty("title", schema.NewString()).
		AddProperty("exercise_type", schema.NewEnum("case_study", "quiz", "exercise", "discussion")).
		AddRequired("title", "exercise_type")
	return schema.NewObject().
		AddProperty("course", schema.NewString()).
		AddProperty("lessons", schema.NewArray(lesson)).
		AddRequired("course", "lessons")
}

func reply(text string) mocks.Reply {
	return mocks.Reply{Text: text, PromptTokens: 100, CompletionTokens: 20}
}

func newTestRegenerator(t *testing.T, p *mocks.MockProvider, opts ...Option) *Regenerator {
	t.Helper()
	gen := llm.NewGenerator(p, llm.GeneratorConfig{DefaultModel: "gpt-4o-mini"}, zaptest.NewLogger(t))
	base := []Option{WithLogger(zaptest.NewLogger(t)), WithEstimator(fixedEstimator(100))}
	return New(gen, append(base, opts...)...)
}

func layers(attempts []RepairAttempt) []Layer {
	out := make([]Layer, len(attempts))
	for i, a := range attempts {
		out[i] = a.Layer
	}
	return out
}

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	return e
}

// ===== cheap layers =====

func TestRegenerate_ConformantOutputPassesThrough(t *testing.T) {
	p := mocks.NewMockProvider()
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), goodDoc, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerPreprocessNormalize, res.LayerUsed)
	assert.Zero(t, res.TotalCost)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Succeeded)
	testutil.AssertJSONEqual(t, goodDoc, res.Data)
	assert.Zero(t, p.GetCallCount())
}

func TestRegenerate_SynonymNormalization(t *testing.T) {
	p := mocks.NewMockProvider()
	r := newTestRegenerator(t, p)
	cfg := StrictConfig()
	cfg.EnumSynonyms = preprocess.Synonyms{"exercise_type": {"analysis": "case_study"}}

	raw := `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"Analysis"}]}`
	res, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerPreprocessNormalize, res.LayerUsed)
	assert.Zero(t, res.TotalCost)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Detail, "normalized 1 enum values")
	v, _ := schema.Lookup(res.Data, "lessons[0].exercise_type")
	assert.Equal(t, "case_study", v)
	assert.Zero(t, p.GetCallCount())
}

func TestRegenerate_SyntaxRepairWithoutLLM(t *testing.T) {
	c := schema.NewObject().AddProperty("a", schema.NewInteger()).AddRequired("a")
	p := mocks.NewMockProvider()
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), `{"a": 1,}`, c, "", StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerSyntaxRepair, res.LayerUsed)
	assert.Zero(t, res.TotalCost)
	assert.Equal(t, []Layer{LayerPreprocessNormalize, LayerSyntaxRepair}, layers(res.Attempts))
	assert.False(t, res.Attempts[0].Succeeded)
	assert.Contains(t, res.Attempts[1].Detail, "trailing_commas")
	testutil.AssertJSONEqual(t, `{"a":1}`, res.Data)
	assert.Zero(t, p.GetCallCount())
}

func TestRegenerate_MarkdownFencedOutput(t *testing.T) {
	r := newTestRegenerator(t, mocks.NewMockProvider())

	raw := "Here you go:\n```json\n" + goodDoc + "\n```"
	res, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)
	assert.Equal(t, LayerPreprocessNormalize, res.LayerUsed)
	testutil.AssertJSONEqual(t, goodDoc, res.Data)
}

func TestRegenerate_SemanticMatch(t *testing.T) {
	emb := mocks.NewMockEmbedder(4).
		WithVector("discussion", []float64{1, 0, 0, 0}).
		WithVector("exercise", []float64{0, 1, 0, 0}).
		WithVector("case_study", []float64{0, 0, 1, 0}).
		WithVector("quiz", []float64{0, 0, 0, 1}).
		WithVector("role_play", mocks.UnitVector(0.90, 4))
	core, logs := observer.New(zap.InfoLevel)
	p := mocks.NewMockProvider()
	r := newTestRegenerator(t, p,
		WithLogger(zap.New(core)),
		WithMatcher(semantic.NewMatcher(semantic.NewCache(emb), nil)),
	)

	raw := `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"role_play"}]}`
	res, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerSemanticMatch, res.LayerUsed)
	assert.Zero(t, res.TotalCost)
	v, _ := schema.Lookup(res.Data, "lessons[0].exercise_type")
	assert.Equal(t, "discussion", v)
	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[1].Detail, `"role_play" -> "discussion"`)
	assert.Zero(t, p.GetCallCount())

	matched := logs.FilterMessage("enum value matched semantically").All()
	require.Len(t, matched, 1)
	assert.Equal(t, "role_play", matched[0].ContextMap()["before"])
	assert.Equal(t, "discussion", matched[0].ContextMap()["after"])
}

// hangingEmbedder blocks every call until its context ends.
type hangingEmbedder struct {
	started  atomic.Int64
	canceled atomic.Int64
}

func (e *hangingEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float64, error) {
	e.started.Add(1)
	<-ctx.Done()
	e.canceled.Add(1)
	return nil, ctx.Err()
}

func TestRegenerate_EmbeddingCallEndsWithLayerTimeout(t *testing.T) {
	emb := &hangingEmbedder{}
	p := mocks.NewMockProvider().WithReplies(reply(goodDoc))
	r := newTestRegenerator(t, p, WithMatcher(semantic.NewMatcher(semantic.NewCache(emb), nil)))
	cfg := StrictConfig()
	cfg.CallTimeout = 50 * time.Millisecond

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)
	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	require.EqualValues(t, 1, emb.started.Load())

	// The timed-out embedding request must not keep running after the run.
	assert.Eventually(t, func() bool { return emb.canceled.Load() == emb.started.Load() },
		time.Second, 5*time.Millisecond)
}

func TestRegenerate_SemanticMatchBelowThresholdFallsThrough(t *testing.T) {
	emb := mocks.NewMockEmbedder(4).
		WithVector("discussion", []float64{1, 0, 0, 0}).
		WithVector("exercise", []float64{0, 1, 0, 0}).
		WithVector("case_study", []float64{0, 0, 1, 0}).
		WithVector("quiz", []float64{0, 0, 0, 1}).
		WithVector("role_play", mocks.UnitVector(0.60, 4))
	p := mocks.NewMockProvider().WithReplies(reply(goodDoc))
	r := newTestRegenerator(t, p, WithMatcher(semantic.NewMatcher(semantic.NewCache(emb), nil)))

	raw := `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"role_play"}]}`
	res, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	assert.Equal(t, []Layer{LayerPreprocessNormalize, LayerSemanticMatch, LayerCritiqueRevise}, layers(res.Attempts))
	assert.False(t, res.Attempts[1].Succeeded)
	assert.Contains(t, res.Attempts[1].Detail, "below threshold")
	assert.Equal(t, 1, p.GetCallCount())
}

func TestRegenerate_EmbeddingFailureIsAbsorbed(t *testing.T) {
	emb := mocks.NewMockEmbedder(4).WithFailAll()
	p := mocks.NewMockProvider().WithReplies(reply(goodDoc))
	r := newTestRegenerator(t, p, WithMatcher(semantic.NewMatcher(semantic.NewCache(emb), nil)))

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	assert.Contains(t, res.Attempts[1].Detail, string(KindServiceFailure))
	assert.Positive(t, emb.Calls())
}

// ===== llm layers =====

func TestRegenerate_CritiqueRevise(t *testing.T) {
	p := mocks.NewMockProvider().WithReplies(reply(goodDoc))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	assert.Equal(t, 120, res.TotalCost)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, 120, res.Attempts[1].TokenCost)
	assert.Equal(t, "gpt-4o-mini", res.Attempts[1].Model)
	assert.True(t, res.Attempts[1].Succeeded)

	call := p.GetLastCall()
	require.NotNil(t, call)
	assert.Contains(t, call.Prompt, coursePrompt)
	assert.Contains(t, call.Prompt, "lessons[0].exercise_type")
}

func TestRegenerate_LLMOutputIsNormalized(t *testing.T) {
	cfg := StrictConfig()
	cfg.EnumSynonyms = preprocess.Synonyms{"exercise_type": {"test": "quiz"}}
	p := mocks.NewMockProvider().WithReplies(reply(`{"course":"Go","lessons":[{"title":"Intro","exercise_type":"Test"}]}`))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)
	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	assert.Contains(t, res.Attempts[1].Detail, "normalized 1 enum values")
}

func TestRegenerate_ServiceFailureMovesOn(t *testing.T) {
	p := mocks.NewMockProvider().WithReplies(
		mocks.Reply{Err: errors.New("upstream 503")},
		reply(goodDoc),
	)
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerCritiqueRevise, res.LayerUsed)
	assert.Equal(t, 120, res.TotalCost)
	require.Len(t, res.Attempts, 3)
	assert.False(t, res.Attempts[1].Succeeded)
	assert.Zero(t, res.Attempts[1].TokenCost)
	assert.Contains(t, res.Attempts[1].Detail, string(KindServiceFailure))
	assert.Equal(t, 2, p.GetCallCount())
}

func TestRegenerate_PartialRegeneration(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxAttemptsPerLayer = 1
	p := mocks.NewMockProvider().WithReplies(reply(badDoc), reply(goodFragment))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerPartialRegeneration, res.LayerUsed)
	assert.Equal(t, []Layer{LayerPreprocessNormalize, LayerCritiqueRevise, LayerPartialRegeneration}, layers(res.Attempts))
	assert.Contains(t, res.Attempts[2].Detail, "target=lessons[0].exercise_type")
	assert.Equal(t, 240, res.TotalCost)
	testutil.AssertJSONEqual(t, goodDoc, res.Data)
}

func TestRegenerate_ModelEscalation(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxAttemptsPerLayer = 1
	cfg.EscalationModel = "gpt-4o"
	p := mocks.NewMockProvider().
		WithReplies(reply(badDoc), reply(badFragment)).
		WithModelReply("gpt-4o", reply(goodDoc))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)

	assert.True(t, res.Validated)
	assert.Equal(t, LayerModelEscalation, res.LayerUsed)
	assert.Equal(t, 360, res.TotalCost)
	last := res.Attempts[len(res.Attempts)-1]
	assert.Equal(t, "gpt-4o", last.Model)

	calls := p.GetCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "gpt-4o", calls[2].Model)
	assert.Equal(t, coursePrompt, calls[2].Prompt)
}

func TestRegenerate_EscalationHappensOnce(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxAttemptsPerLayer = 1
	cfg.EscalationModel = "gpt-4o"
	p := mocks.NewMockProvider().
		WithReplies(reply(badDoc), reply(badFragment)).
		WithModelReply("gpt-4o", reply(badDoc))
	r := newTestRegenerator(t, p)

	_, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, KindRegenerationExhausted, e.Kind)

	// Round two only runs critique, on the escalated model.
	assert.Equal(t, []Layer{
		LayerPreprocessNormalize,
		LayerCritiqueRevise,
		LayerPartialRegeneration,
		LayerModelEscalation,
		LayerCritiqueRevise,
	}, layers(e.Attempts))
	assert.Equal(t, "gpt-4o", e.Attempts[4].Model)
	assert.Equal(t, 4, p.GetCallCount())
}

// ===== terminal outcomes =====

func TestRegenerate_ExhaustedWithoutFallback(t *testing.T) {
	p := mocks.NewMockProvider().WithReplies(reply(badDoc), reply(badDoc), reply(badFragment), reply(badFragment))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.Error(t, err)
	assert.Nil(t, res)

	assert.ErrorIs(t, err, ErrRegenerationExhausted)
	assert.NotErrorIs(t, err, ErrBudgetExceeded)
	e := asError(t, err)
	assert.Equal(t, 480, e.TotalCost)
	assert.NotEmpty(t, e.RunID)
	require.Len(t, e.Violations, 1)
	testutil.AssertViolationAt(t, e.Violations, "lessons[0].exercise_type", schema.EnumViolation)
	assert.True(t, IsKind(e.Cause, KindSchemaViolation))
	assert.Equal(t, []Layer{
		LayerPreprocessNormalize,
		LayerCritiqueRevise,
		LayerCritiqueRevise,
		LayerPartialRegeneration,
		LayerPartialRegeneration,
	}, layers(e.Attempts))
	assert.Equal(t, 4, p.GetCallCount())
}

func TestRegenerate_NeverParsedReportsParseFailure(t *testing.T) {
	p := mocks.NewMockProvider().WithDefault(reply("not json at all"))
	r := newTestRegenerator(t, p)
	cfg := AdvisoryConfig()

	res, err := r.Regenerate(testutil.TestContext(t), "not json at all", lessonContract(), coursePrompt, cfg)
	require.Error(t, err)
	assert.Nil(t, res, "fallback needs a parsed value")
	e := asError(t, err)
	assert.Equal(t, KindRegenerationExhausted, e.Kind)
	assert.True(t, IsKind(e.Cause, KindParseFailure))
	// Partial regeneration needs a parsed candidate.
	assert.Equal(t, 1, p.GetCallCount())
}

func TestRegenerate_WarningFallback(t *testing.T) {
	p := mocks.NewMockProvider().WithReplies(reply(badDoc), reply(badFragment))
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, AdvisoryConfig())
	require.NoError(t, err)

	assert.False(t, res.Validated)
	assert.Equal(t, LayerWarningFallback, res.LayerUsed)
	assert.Equal(t, 240, res.TotalCost)
	testutil.AssertJSONEqual(t, badDoc, res.Data)
	last := res.Attempts[len(res.Attempts)-1]
	assert.Equal(t, LayerWarningFallback, last.Layer)
	assert.False(t, last.Succeeded)
	assert.Len(t, last.RemainingViolations, 1)
}

func TestRegenerate_FallbackRefusesWrongRootType(t *testing.T) {
	p := mocks.NewMockProvider().WithDefault(reply(`["not", "an", "object"]`))
	r := newTestRegenerator(t, p)

	_, err := r.Regenerate(testutil.TestContext(t), `[1, 2]`, lessonContract(), coursePrompt, AdvisoryConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegenerationExhausted)
}

// ===== budget =====

func TestRegenerate_ZeroBudgetMakesNoCalls(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxTotalTokenCost = 0
	p := mocks.NewMockProvider().WithDefault(reply(goodDoc))
	r := newTestRegenerator(t, p)

	_, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Zero(t, p.GetCallCount())
}

func TestRegenerate_BudgetGateClampsAndStops(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxTotalTokenCost = 150
	p := mocks.NewMockProvider().WithDefault(reply(badDoc))
	r := newTestRegenerator(t, p)

	_, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	e := asError(t, err)
	assert.Equal(t, 120, e.TotalCost)
	assert.LessOrEqual(t, e.TotalCost, cfg.MaxTotalTokenCost)
	require.Equal(t, 1, p.GetCallCount())
	// 150 budget - 100 estimated input leaves 50 output tokens.
	assert.Equal(t, 50, p.GetCalls()[0].MaxTokens)
}

func TestRegenerate_ReportedUsageOverCeiling(t *testing.T) {
	cfg := AdvisoryConfig()
	cfg.MaxTotalTokenCost = 150
	p := mocks.NewMockProvider().WithDefault(mocks.Reply{Text: goodDoc, PromptTokens: 200, CompletionTokens: 50})
	r := newTestRegenerator(t, p)

	res, err := r.Regenerate(testutil.TestContext(t), badDoc, lessonContract(), coursePrompt, cfg)
	require.Error(t, err)
	assert.Nil(t, res, "no data is returned once the ceiling is broken, even with fallback")
	e := asError(t, err)
	assert.Equal(t, KindBudgetExceeded, e.Kind)
	assert.Equal(t, 250, e.TotalCost)
}

// ===== cancellation =====

func TestRegenerate_CanceledBeforeStart(t *testing.T) {
	p := mocks.NewMockProvider()
	rec := &captureRecorder{}
	r := newTestRegenerator(t, p, WithRecorder(rec))

	_, err := r.Regenerate(testutil.CancelledContext(), badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, p.GetCallCount())
	assert.Equal(t, OutcomeCanceled, rec.last(t).Outcome)
}

func TestRegenerate_CanceledDuringLLMCall(t *testing.T) {
	p := mocks.NewMockProvider().WithDefault(mocks.Reply{Text: goodDoc, Delay: 5 * time.Second})
	rec := &captureRecorder{}
	r := newTestRegenerator(t, p, WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res, err := r.Regenerate(ctx, badDoc, lessonContract(), coursePrompt, StrictConfig())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	run := rec.last(t)
	assert.Equal(t, OutcomeCanceled, run.Outcome)
	last := run.Attempts[len(run.Attempts)-1]
	assert.Equal(t, string(LayerCritiqueRevise), last.Layer)
	assert.Contains(t, last.Detail, "canceled")
}

// ===== arguments =====

func TestRegenerate_RejectsBadArguments(t *testing.T) {
	r := newTestRegenerator(t, mocks.NewMockProvider())
	ctx := testutil.TestContext(t)

	_, err := r.Regenerate(ctx, goodDoc, nil, "", StrictConfig())
	assert.Error(t, err)

	cfg := StrictConfig()
	cfg.SemanticMatchThreshold = 1.5
	_, err = r.Regenerate(ctx, goodDoc, lessonContract(), "", cfg)
	assert.Error(t, err)
}

func TestRegenerate_ConcurrentRunsAreIndependent(t *testing.T) {
	p := mocks.NewSuccessProvider(goodDoc, 100, 20)
	r := newTestRegenerator(t, p)
	ctx := testutil.TestContext(t)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Regenerate(ctx, badDoc, lessonContract(), coursePrompt, StrictConfig())
			if assert.NoError(t, err) {
				assert.Equal(t, 120, res.TotalCost)
				ids[i] = res.RunID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
	assert.Equal(t, n, p.GetCallCount())
}

func TestRegenerate_ResultDoesNotAliasInput(t *testing.T) {
	r := newTestRegenerator(t, mocks.NewMockProvider())
	cfg := StrictConfig()
	cfg.EnumSynonyms = preprocess.Synonyms{"exercise_type": {"analysis": "case_study"}}

	raw := `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"analysis"}]}`
	first, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)
	first.Attempts[0].RemainingViolations = append(first.Attempts[0].RemainingViolations, schema.Violation{Path: "x"})

	second, err := r.Regenerate(testutil.TestContext(t), raw, lessonContract(), coursePrompt, cfg)
	require.NoError(t, err)
	assert.Empty(t, second.Attempts[0].RemainingViolations)
}
