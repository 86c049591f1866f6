package regen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maslennikov-ig/MC-2-sub003/internal/pool"
	"github.com/maslennikov-ig/MC-2-sub003/llm/retry"
	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
	"github.com/maslennikov-ig/MC-2-sub003/testutil"
	"github.com/maslennikov-ig/MC-2-sub003/testutil/mocks"
)

func TestRunUnits_FailuresAreIsolated(t *testing.T) {
	r := newTestRegenerator(t, mocks.NewMockProvider())

	broke := StrictConfig()
	broke.MaxTotalTokenCost = 0
	synonyms := StrictConfig()
	synonyms.EnumSynonyms = preprocess.Synonyms{"exercise_type": {"analysis": "case_study"}}

	units := []Unit{
		{ID: "intro", RawOutput: goodDoc, Contract: lessonContract(), Config: StrictConfig()},
		{ID: "broken", RawOutput: "not json at all", Contract: lessonContract(), Config: broke},
		{ID: "alias", RawOutput: `{"course":"Go","lessons":[{"title":"Intro","exercise_type":"analysis"}]}`, Contract: lessonContract(), Config: synonyms},
	}

	results := RunUnits(testutil.TestContext(t), r, units, RunOptions{Workers: 2, Logger: zaptest.NewLogger(t)})
	require.Len(t, results, 3)

	assert.Equal(t, "intro", results[0].ID)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Result.Validated)

	assert.Equal(t, "broken", results[1].ID)
	assert.Nil(t, results[1].Result)
	assert.ErrorIs(t, results[1].Err, ErrBudgetExceeded)
	assert.True(t, IsKind(results[1].Err, KindBudgetExceeded))

	assert.Equal(t, "alias", results[2].ID)
	require.NoError(t, results[2].Err)
	assert.Equal(t, LayerPreprocessNormalize, results[2].Result.LayerUsed)
}

func TestRunUnits_SharedPool(t *testing.T) {
	p := pool.New(pool.Config{Workers: 3, QueueSize: 8}, zaptest.NewLogger(t))
	t.Cleanup(p.Close)
	r := newTestRegenerator(t, mocks.NewSuccessProvider(goodDoc, 100, 20))

	units := make([]Unit, 6)
	for i := range units {
		units[i] = Unit{ID: string(rune('a' + i)), RawOutput: badDoc, Contract: lessonContract(), Prompt: coursePrompt, Config: StrictConfig()}
	}
	results := RunUnits(testutil.TestContext(t), r, units, RunOptions{Pool: p})

	for i, res := range results {
		assert.Equal(t, units[i].ID, res.ID)
		require.NoError(t, res.Err)
		assert.Equal(t, LayerCritiqueRevise, res.Result.LayerUsed)
	}
	assert.EqualValues(t, 6, p.Stats().Completed)
}

func TestRunUnits_RetriesWholeRun(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxAttemptsPerLayer = 1
	// First run: critique and partial both fail, the run is exhausted.
	// Second run: critique succeeds.
	p := mocks.NewMockProvider().WithReplies(
		mocks.Reply{Err: errors.New("upstream 503")},
		mocks.Reply{Err: errors.New("upstream 503")},
		reply(goodDoc),
	)
	r := newTestRegenerator(t, p)

	results := RunUnits(testutil.TestContext(t), r,
		[]Unit{{ID: "u1", RawOutput: badDoc, Contract: lessonContract(), Prompt: coursePrompt, Config: cfg}},
		RunOptions{
			Workers: 1,
			Retry:   &retry.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Result.Validated)
	assert.Equal(t, 3, p.GetCallCount())
}

func TestRunUnits_RetryGivesUpWithLastError(t *testing.T) {
	cfg := StrictConfig()
	cfg.MaxTotalTokenCost = 0
	r := newTestRegenerator(t, mocks.NewMockProvider())

	results := RunUnits(testutil.TestContext(t), r,
		[]Unit{{ID: "u1", RawOutput: badDoc, Contract: lessonContract(), Config: cfg}},
		RunOptions{Retry: &retry.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}})

	require.Error(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, ErrBudgetExceeded)
}

func TestRunUnits_Canceled(t *testing.T) {
	r := newTestRegenerator(t, mocks.NewMockProvider())
	units := []Unit{
		{ID: "a", RawOutput: goodDoc, Contract: lessonContract(), Config: StrictConfig()},
		{ID: "b", RawOutput: goodDoc, Contract: lessonContract(), Config: StrictConfig()},
	}

	results := RunUnits(testutil.CancelledContext(), r, units, RunOptions{Workers: 1})
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled, res.ID)
		assert.Nil(t, res.Result)
	}
}
