package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	segs, err := ParsePath("lessons[2].exercise_type")
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Key: "lessons"}, {Index: 2, IsIndex: true}, {Key: "exercise_type"}}, segs)
	assert.Equal(t, "lessons[2].exercise_type", FormatPath(segs))

	root, err := ParsePath("")
	require.NoError(t, err)
	assert.Empty(t, root)

	_, err = ParsePath("a[x]")
	assert.Error(t, err)
	_, err = ParsePath("a[1")
	assert.Error(t, err)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "lessons[2]", Parent("lessons[2].type"))
	assert.Equal(t, "lessons", Parent("lessons[2]"))
	assert.Equal(t, "", Parent("name"))
	assert.Equal(t, "", Parent(""))

	assert.Equal(t, "lessons[*].type", Pattern("lessons[12].type"))
	assert.Equal(t, "$", Pattern(""))
	assert.Equal(t, "lessons.type", FieldName("lessons[12].type"))
	assert.Equal(t, "type", Leaf("lessons[12].type"))
	assert.Equal(t, "lessons", Leaf("lessons[3]"))
}

func TestCommonAncestor(t *testing.T) {
	tests := []struct {
		paths []string
		want  string
	}{
		{nil, ""},
		{[]string{"a.b.c"}, "a.b.c"},
		{[]string{"a.b[1].c", "a.b[1].d"}, "a.b[1]"},
		{[]string{"a.b[1].c", "a.b[2].c"}, "a.b"},
		{[]string{"a.x", "b.x"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommonAncestor(tt.paths), "%v", tt.paths)
	}
}

func TestLookupAndSet(t *testing.T) {
	data := mustParse(t, `{"lessons":[{"type":"a"},{"type":"b"}]}`)

	v, ok := Lookup(data, "lessons[1].type")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = Lookup(data, "lessons[5].type")
	assert.False(t, ok)

	data, err := Set(data, "lessons[1].type", "quiz")
	require.NoError(t, err)
	v, _ = Lookup(data, "lessons[1].type")
	assert.Equal(t, "quiz", v)

	data, err = Set(data, "lessons[0]", map[string]any{"type": "z"})
	require.NoError(t, err)
	v, _ = Lookup(data, "lessons[0].type")
	assert.Equal(t, "z", v)

	_, err = Set(data, "missing.type", "x")
	assert.Error(t, err)

	replaced, err := Set(data, "", "root")
	require.NoError(t, err)
	assert.Equal(t, "root", replaced)
}

func TestClone_IsDeep(t *testing.T) {
	orig := map[string]any{"a": []any{map[string]any{"b": "c"}}}
	cp := Clone(orig).(map[string]any)
	cp["a"].([]any)[0].(map[string]any)["b"] = "changed"
	assert.Equal(t, "c", orig["a"].([]any)[0].(map[string]any)["b"])
}
