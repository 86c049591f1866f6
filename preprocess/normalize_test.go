package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

var exerciseTypes = []string{"case_study", "quiz", "discussion", "role_play_debrief"}

var testSynonyms = Synonyms{
	"exercise_type": {
		"analysis":    "case_study",
		"Test":        "quiz",
		"group talk":  "discussion",
		"CASE-REVIEW": "case_study",
	},
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"  Case Study ":   "case_study",
		"case--study":     "case_study",
		"Case\t \nStudy":  "case_study",
		"_quiz_":          "quiz",
		"ROLE-play  talk": "role_play_talk",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), "Fold(%q)", in)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		changed bool
		rule    Rule
	}{
		{"already allowed", "quiz", "quiz", false, ""},
		{"synonym", "analysis", "case_study", true, RuleSynonym},
		{"synonym after folding", "  Analysis ", "case_study", true, RuleSynonym},
		{"synonym key folded", "case review", "case_study", true, RuleSynonym},
		{"folded multi-word synonym", "Group-Talk", "discussion", true, RuleSynonym},
		{"folds onto allowed value", "Case Study", "case_study", true, RuleFold},
		{"unknown stays unchanged", "role_play", "role_play", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.value, "exercise_type", exerciseTypes, testSynonyms)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.changed, got.Changed)
			assert.Equal(t, tt.rule, got.Rule)
			assert.Equal(t, tt.value, got.Before)
			if tt.changed {
				assert.Contains(t, got.Description, "exercise_type")
			}
		})
	}
}

func TestNormalize_AmbiguousFoldIsLeftAlone(t *testing.T) {
	got := Normalize("Case Study", "kind", []string{"case_study", "Case-Study"}, nil)
	assert.False(t, got.Changed)
	assert.Equal(t, "Case Study", got.Value)
}

func TestSynonyms_Table(t *testing.T) {
	s := Synonyms{
		"lessons.exercise_type": {"a": "b"},
		"exercise_type":         {"c": "d"},
	}
	assert.Equal(t, map[string]string{"a": "b"}, s.Table("lessons.exercise_type"))
	assert.Equal(t, map[string]string{"c": "d"}, s.Table("modules.exercise_type"))
	assert.Equal(t, map[string]string{"c": "d"}, s.Table("exercise_type"))
	assert.Nil(t, s.Table("other"))
	assert.Nil(t, Synonyms(nil).Table("x"))
}

func TestProperty_Normalize_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		word := rapid.StringMatching(`[A-Za-z _\-]{0,16}`)
		allowed := rapid.SliceOfN(word, 0, 6).Draw(rt, "allowed")
		table := rapid.MapOfN(word, word, 0, 6).Draw(rt, "table")
		value := rapid.OneOf(word, rapid.SampledFrom(append([]string{"x"}, allowed...))).Draw(rt, "value")
		synonyms := Synonyms{"field": table}

		once := Normalize(value, "field", allowed, synonyms)
		twice := Normalize(once.Value, "field", allowed, synonyms)

		assert.Equal(t, once.Value, twice.Value)
		assert.False(t, twice.Changed, "second pass must be a no-op: %s", twice.Description)
	})
}

func TestPreprocessor_Apply(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := New(zap.New(core))

	lesson := schema.NewObject().
		AddProperty("title", schema.NewString()).
		AddProperty("exercise_type", schema.NewEnum(exerciseTypes...))
	contract := schema.NewObject().
		AddProperty("exercise_type", schema.NewEnum(exerciseTypes...)).
		AddProperty("lessons", schema.NewArray(lesson))

	data, err := schema.Parse(`{
		"exercise_type": "analysis",
		"lessons": [
			{"title": "Analysis", "exercise_type": "Quiz"},
			{"title": "x", "exercise_type": "role_play"}
		]
	}`)
	require.NoError(t, err)

	out, changes := p.Apply(data, contract, testSynonyms)
	require.Len(t, changes, 2)
	assert.Equal(t, "exercise_type", changes[0].Path)
	assert.Equal(t, "lessons[0].exercise_type", changes[1].Path)

	v, _ := schema.Lookup(out, "exercise_type")
	assert.Equal(t, "case_study", v)
	v, _ = schema.Lookup(out, "lessons[0].exercise_type")
	assert.Equal(t, "quiz", v)
	v, _ = schema.Lookup(out, "lessons[1].exercise_type")
	assert.Equal(t, "role_play", v)
	// Free-text fields are never touched.
	v, _ = schema.Lookup(out, "lessons[0].title")
	assert.Equal(t, "Analysis", v)

	// Input is not modified.
	v, _ = schema.Lookup(data, "exercise_type")
	assert.Equal(t, "analysis", v)

	entries := logs.FilterMessage("enum value normalized").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "analysis", fields["before"])
	assert.Equal(t, "case_study", fields["after"])
}

func TestPreprocessor_ApplyIgnoresWrongTypes(t *testing.T) {
	p := New(nil)
	contract := schema.NewObject().AddProperty("exercise_type", schema.NewEnum(exerciseTypes...))

	out, changes := p.Apply(map[string]any{"exercise_type": 12.0}, contract, testSynonyms)
	assert.Empty(t, changes)
	assert.Equal(t, map[string]any{"exercise_type": 12.0}, out)

	out, changes = p.Apply("not an object", contract, testSynonyms)
	assert.Empty(t, changes)
	assert.Equal(t, "not an object", out)
}
