package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTokenizer struct {
	name string
	n    int
}

func (f fixedTokenizer) CountTokens(string) (int, error) { return f.n, nil }
func (f fixedTokenizer) CountMessages([]Message) (int, error) { return f.n, nil }
func (f fixedTokenizer) MaxTokens() int { return 100 }
func (f fixedTokenizer) Name() string { return f.name }

func TestGetTokenizer_LongestPrefixWins(t *testing.T) {
	RegisterTokenizer("test-model", fixedTokenizer{name: "short", n: 1})
	RegisterTokenizer("test-model-large", fixedTokenizer{name: "long", n: 2})

	tok, err := GetTokenizer("test-model-large-2026")
	require.NoError(t, err)
	assert.Equal(t, "long", tok.Name())

	tok, err = GetTokenizer("test-model")
	require.NoError(t, err)
	assert.Equal(t, "short", tok.Name())

	_, err = GetTokenizer("unknown-model")
	assert.Error(t, err)
}

func TestGetTokenizerOrEstimator_FallsBack(t *testing.T) {
	tok := GetTokenizerOrEstimator("claude-sonnet-unregistered")
	assert.Equal(t, "estimator", tok.Name())
}

func TestCount_UsesRegisteredTokenizer(t *testing.T) {
	RegisterTokenizer("count-model", fixedTokenizer{name: "fixed", n: 42})
	assert.Equal(t, 42, Count("count-model", "anything"))
}

func TestEstimatorTokenizer(t *testing.T) {
	e := NewEstimatorTokenizer("m", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "non-empty text is at least one token")

	// CJK 字符约 1.5 字符/token
	n, err = e.CountTokens("你好世界测试")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	total, err := e.CountMessages([]Message{{Role: "user", Content: "abcdefgh"}})
	require.NoError(t, err)
	assert.Equal(t, 2+4+3, total)
}

func TestNewTiktokenTokenizer_EncodingSelection(t *testing.T) {
	tests := []struct {
		model    string
		encoding string
		max      int
	}{
		{"gpt-4o-mini", "o200k_base", 128000},
		{"gpt-4o-mini-2024-07-18", "o200k_base", 128000},
		{"gpt-4-0613", "cl100k_base", 8192},
		{"some-other-model", "cl100k_base", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tok, err := NewTiktokenTokenizer(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, tok.encoding)
			assert.Equal(t, tt.max, tok.MaxTokens())
			assert.Equal(t, "tiktoken["+tt.encoding+"]", tok.Name())
		})
	}
}
