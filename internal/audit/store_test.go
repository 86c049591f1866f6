package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maslennikov-ig/MC-2-sub003/config"
	"github.com/maslennikov-ig/MC-2-sub003/internal/database"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 1,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db, zaptest.NewLogger(t))
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleRun(id string, started time.Time, paths ...string) Run {
	run := Run{
		RunID:     id,
		Outcome:   "success",
		LayerUsed: "CritiqueRevise",
		Validated: true,
		TotalCost: 240,
		Model:     "gpt-4o-mini",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Attempts: []Attempt{
			{Layer: "PreprocessNormalize", Succeeded: false, RemainingViolations: len(paths), StartedAt: started},
			{Layer: "CritiqueRevise", Succeeded: true, TokenCost: 240, Model: "gpt-4o-mini", StartedAt: started, DurationMs: 1200},
		},
	}
	for _, p := range paths {
		run.Violations = append(run.Violations, schema.Violation{Path: p, Kind: schema.EnumViolation, Expected: "one of [lab quiz]"})
	}
	return run
}

func TestStore_RecordAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	require.NoError(t, store.Record(ctx, sampleRun("run-1", started, "lessons[2].type", "lessons[0].type")))

	rec, err := store.FindRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "success", rec.Outcome)
	assert.Equal(t, 240, rec.TotalCost)
	assert.Equal(t, int64(1500), rec.DurationMs)
	require.Len(t, rec.Attempts, 2)
	assert.Equal(t, 0, rec.Attempts[0].Seq)
	assert.Equal(t, "PreprocessNormalize", rec.Attempts[0].Layer)
	assert.Equal(t, "CritiqueRevise", rec.Attempts[1].Layer)
	require.Len(t, rec.Violations, 2)
	assert.Equal(t, "lessons[*].type", rec.Violations[0].Pattern)
	assert.Equal(t, "lessons[2].type", rec.Violations[0].Path)
}

func TestStore_FindRunMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.FindRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_RecordRequiresRunID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Record(context.Background(), Run{}))
}

func TestStore_DuplicateRunIDRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Now()

	require.NoError(t, store.Record(ctx, sampleRun("dup", started, "a")))
	assert.Error(t, store.Record(ctx, sampleRun("dup", started, "b")))

	rec, err := store.FindRun(ctx, "dup")
	require.NoError(t, err)
	require.Len(t, rec.Violations, 1)
	assert.Equal(t, "a", rec.Violations[0].Path)
}

func TestStore_RecurringViolationPaths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, sampleRun("r1", now, "lessons[0].type", "lessons[3].type", "title")))
	require.NoError(t, store.Record(ctx, sampleRun("r2", now, "lessons[1].type")))
	require.NoError(t, store.Record(ctx, sampleRun("old", now.Add(-48*time.Hour), "title", "title")))

	counts, err := store.RecurringViolationPaths(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, PathCount{Pattern: "lessons[*].type", Kind: "EnumViolation", Count: 3}, counts[0])
	assert.Equal(t, PathCount{Pattern: "title", Kind: "EnumViolation", Count: 1}, counts[1])

	top, err := store.RecurringViolationPaths(ctx, now.Add(-72*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "lessons[*].type", top[0].Pattern)
	assert.EqualValues(t, 3, top[0].Count)
}

func TestStore_OutcomeCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, sampleRun("a", now)))
	failed := sampleRun("b", now)
	failed.Outcome = "exhausted"
	failed.Validated = false
	failed.Error = "regeneration exhausted"
	require.NoError(t, store.Record(ctx, failed))

	counts, err := store.OutcomeCounts(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"success": 1, "exhausted": 1}, counts)
}
