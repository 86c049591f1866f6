package regen

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
	"github.com/maslennikov-ig/MC-2-sub003/testutil/mocks"
)

var replyTexts = []string{goodDoc, badDoc, goodFragment, badFragment, "not json at all", `{"course":"Go","lessons":[],}`}

func replyGen() *rapid.Generator[mocks.Reply] {
	return rapid.Custom(func(t *rapid.T) mocks.Reply {
		if rapid.IntRange(0, 9).Draw(t, "fail") == 0 {
			return mocks.Reply{Err: errors.New("upstream unavailable")}
		}
		return mocks.Reply{
			Text:             rapid.SampledFrom(replyTexts).Draw(t, "text"),
			PromptTokens:     rapid.IntRange(1, 400).Draw(t, "prompt_tokens"),
			CompletionTokens: rapid.IntRange(1, 200).Draw(t, "completion_tokens"),
		}
	})
}

func configGen() *rapid.Generator[Config] {
	return rapid.Custom(func(t *rapid.T) Config {
		cfg := StrictConfig()
		cfg.MaxAttemptsPerLayer = rapid.IntRange(1, 3).Draw(t, "attempts")
		cfg.MaxTotalTokenCost = rapid.IntRange(0, 2000).Draw(t, "ceiling")
		cfg.AllowWarningFallback = rapid.Bool().Draw(t, "fallback")
		if rapid.Bool().Draw(t, "escalate") {
			cfg.EscalationModel = "gpt-4o"
		}
		return cfg
	})
}

// runScripted regenerates raw against a provider replaying replies.
func runScripted(cfg Config, raw string, replies []mocks.Reply) (*Result, *mocks.MockProvider, error) {
	p := mocks.NewMockProvider().WithReplies(replies...)
	gen := llm.NewGenerator(p, llm.GeneratorConfig{DefaultModel: "gpt-4o-mini"}, zap.NewNop())
	r := New(gen, WithEstimator(fixedEstimator(50)))
	res, err := r.Regenerate(context.Background(), raw, lessonContract(), coursePrompt, cfg)
	return res, p, err
}

func attemptsOf(t *rapid.T, res *Result, err error) ([]RepairAttempt, int) {
	if err == nil {
		return res.Attempts, res.TotalCost
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	return e.Attempts, e.TotalCost
}

func TestProperty_Regenerate_ValidatedMeansConformant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := configGen().Draw(t, "cfg")
		raw := rapid.SampledFrom(replyTexts).Draw(t, "raw")
		replies := rapid.SliceOfN(replyGen(), 0, 8).Draw(t, "replies")

		res, _, err := runScripted(cfg, raw, replies)
		if err != nil {
			if res != nil {
				t.Fatalf("result and error both set")
			}
			return
		}
		if res.Validated {
			if v := schema.Validate(res.Data, lessonContract()); len(v) != 0 {
				t.Fatalf("validated result has violations: %v", v)
			}
			return
		}
		if !cfg.AllowWarningFallback {
			t.Fatalf("unvalidated result returned without fallback enabled")
		}
		if res.LayerUsed != LayerWarningFallback {
			t.Fatalf("unvalidated result from layer %s", res.LayerUsed)
		}
	})
}

func TestProperty_Regenerate_CostAccounting(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := configGen().Draw(t, "cfg")
		raw := rapid.SampledFrom([]string{badDoc, "not json at all"}).Draw(t, "raw")
		replies := rapid.SliceOfN(replyGen(), 0, 8).Draw(t, "replies")

		res, p, err := runScripted(cfg, raw, replies)
		attempts, total := attemptsOf(t, res, err)

		sum, llmAttempts := 0, 0
		for _, a := range attempts {
			if a.TokenCost < 0 {
				t.Fatalf("negative cost on %s", a.Layer)
			}
			if !a.Layer.UsesLLM() && a.TokenCost != 0 {
				t.Fatalf("layer %s has cost %d without an llm call", a.Layer, a.TokenCost)
			}
			if a.Layer.UsesLLM() {
				llmAttempts++
			}
			sum += a.TokenCost
		}
		if sum != total {
			t.Fatalf("attempt costs sum to %d, total is %d", sum, total)
		}
		if llmAttempts != p.GetCallCount() {
			t.Fatalf("%d llm attempts for %d provider calls", llmAttempts, p.GetCallCount())
		}
		if total > cfg.MaxTotalTokenCost && !errors.Is(err, ErrBudgetExceeded) {
			t.Fatalf("total %d over ceiling %d without BudgetExceeded (err=%v)", total, cfg.MaxTotalTokenCost, err)
		}
	})
}

func TestProperty_Regenerate_LayerBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := configGen().Draw(t, "cfg")
		cfg.MaxTotalTokenCost = 100000
		raw := rapid.SampledFrom([]string{badDoc, "not json at all"}).Draw(t, "raw")
		replies := rapid.SliceOfN(replyGen(), 0, 12).Draw(t, "replies")

		res, p, err := runScripted(cfg, raw, replies)
		attempts, _ := attemptsOf(t, res, err)

		counts := map[Layer]int{}
		for _, a := range attempts {
			counts[a.Layer]++
		}
		if counts[LayerModelEscalation] > 1 {
			t.Fatalf("escalated %d times", counts[LayerModelEscalation])
		}
		if cfg.EscalationModel == "" && counts[LayerModelEscalation] != 0 {
			t.Fatalf("escalated without an escalation model")
		}
		if counts[LayerPartialRegeneration] > cfg.MaxAttemptsPerLayer {
			t.Fatalf("partial regeneration ran %d times", counts[LayerPartialRegeneration])
		}
		maxCritique := cfg.MaxAttemptsPerLayer
		if counts[LayerModelEscalation] == 1 {
			maxCritique *= 2
		}
		if counts[LayerCritiqueRevise] > maxCritique {
			t.Fatalf("critique ran %d times, bound %d", counts[LayerCritiqueRevise], maxCritique)
		}
		if bound := 3*cfg.MaxAttemptsPerLayer + 1; p.GetCallCount() > bound {
			t.Fatalf("%d llm calls, bound %d", p.GetCallCount(), bound)
		}
	})
}

func TestProperty_Regenerate_DeterministicForSameScript(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := configGen().Draw(t, "cfg")
		raw := rapid.SampledFrom(replyTexts).Draw(t, "raw")
		replies := rapid.SliceOfN(replyGen(), 0, 6).Draw(t, "replies")

		res1, _, err1 := runScripted(cfg, raw, replies)
		res2, _, err2 := runScripted(cfg, raw, replies)

		a1, c1 := attemptsOf(t, res1, err1)
		a2, c2 := attemptsOf(t, res2, err2)
		if c1 != c2 || len(a1) != len(a2) || (err1 == nil) != (err2 == nil) {
			t.Fatalf("runs diverged: cost %d/%d attempts %d/%d err %v/%v", c1, c2, len(a1), len(a2), err1, err2)
		}
		for i := range a1 {
			if a1[i].Layer != a2[i].Layer {
				t.Fatalf("attempt %d: %s vs %s", i, a1[i].Layer, a2[i].Layer)
			}
		}
	})
}
