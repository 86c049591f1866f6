package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeProvider struct {
	name  string
	mu    sync.Mutex
	reqs  []*ChatRequest
	reply func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.reply(ctx, req)
}

func textReply(text string, in, out int) func(context.Context, *ChatRequest) (*ChatResponse, error) {
	return func(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{
			Model:   req.Model,
			Choices: []ChatChoice{{Message: Message{Role: RoleAssistant, Content: text}}},
			Usage:   ChatUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		}, nil
	}
}

func TestGenerator_Generate(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: textReply(`{"a":1}`, 10, 5)}
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "gpt-4o-mini", SystemPrompt: "json only"}, zap.NewNop())

	gen, err := g.Generate(context.Background(), "make json", "", 256)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, gen.Text)
	assert.Equal(t, 15, gen.Cost())
	assert.Equal(t, "gpt-4o-mini", gen.Model)
	assert.False(t, gen.Estimated)

	require.Len(t, p.reqs, 1)
	req := p.reqs[0]
	assert.Equal(t, 256, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "make json", req.Messages[1].Content)
}

func TestGenerator_EstimatesMissingUsage(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: textReply("some output text here", 0, 0)}
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "local-model"}, nil)

	gen, err := g.Generate(context.Background(), "prompt text", "", 0)
	require.NoError(t, err)
	assert.True(t, gen.Estimated)
	assert.Positive(t, gen.InputTokens)
	assert.Positive(t, gen.OutputTokens)
	assert.Equal(t, g.EstimateTokens("prompt text", "local-model"), gen.InputTokens)
}

func TestGenerator_RoutesByLongestPrefix(t *testing.T) {
	def := &fakeProvider{name: "default", reply: textReply("d", 1, 1)}
	claude := &fakeProvider{name: "claude", reply: textReply("c", 1, 1)}
	opus := &fakeProvider{name: "opus", reply: textReply("o", 1, 1)}

	g := NewGenerator(def, GeneratorConfig{DefaultModel: "gpt-4o"}, nil).
		Route("claude-", claude).
		Route("claude-opus", opus)

	for model, want := range map[string]string{
		"gpt-4o":            "d",
		"claude-sonnet-4-5": "c",
		"claude-opus-4-1":   "o",
	} {
		gen, err := g.Generate(context.Background(), "p", model, 10)
		require.NoError(t, err)
		assert.Equal(t, want, gen.Text, model)
	}
}

func TestGenerator_NoProvider(t *testing.T) {
	g := NewGenerator(nil, GeneratorConfig{}, nil)
	_, err := g.Generate(context.Background(), "p", "any", 10)

	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrRoutingUnavailable, le.Code)
}

func TestGenerator_TimeoutIsUpstreamTimeout(t *testing.T) {
	p := &fakeProvider{name: "slow", reply: func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "m", CallTimeout: 10 * time.Millisecond}, nil)

	_, err := g.Generate(context.Background(), "p", "", 10)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrUpstreamTimeout, le.Code)
	assert.Equal(t, "slow", le.Provider)
}

func TestGenerator_CallerCancellationIsNotWrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{name: "fake", reply: func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "m"}, nil)

	_, err := g.Generate(ctx, "p", "", 10)
	assert.ErrorIs(t, err, context.Canceled)
	var le *Error
	assert.False(t, errors.As(err, &le))
}

func TestGenerator_ProviderErrorsAreNormalized(t *testing.T) {
	typed := &Error{Code: ErrRateLimited, Message: "slow down", HTTPStatus: 429, Retryable: true, Provider: "fake"}
	p := &fakeProvider{name: "fake", reply: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return nil, typed
	}}
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "m"}, nil)
	_, err := g.Generate(context.Background(), "p", "", 10)
	assert.Same(t, typed, err)
	assert.True(t, IsRetryable(err))

	p.reply = func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return nil, errors.New("connection reset")
	}
	_, err = g.Generate(context.Background(), "p", "", 10)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrUpstreamError, le.Code)

	p.reply = func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{}, nil
	}
	_, err = g.Generate(context.Background(), "p", "", 10)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrEmptyResponse, le.Code)
}

func TestGenerator_SharedLimiter(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: textReply("x", 1, 1)}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	g := NewGenerator(p, GeneratorConfig{DefaultModel: "m", CallTimeout: 20 * time.Millisecond}, nil).WithLimiter(limiter)

	_, err := g.Generate(context.Background(), "p", "", 10)
	require.NoError(t, err)

	// 令牌已耗尽，等待会超过调用截止时间
	_, err = g.Generate(context.Background(), "p", "", 10)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrRateLimited, le.Code)
	assert.Len(t, p.reqs, 1)
}

func TestChatResponse_Text(t *testing.T) {
	var nilResp *ChatResponse
	assert.Equal(t, "", nilResp.Text())

	resp := &ChatResponse{Choices: []ChatChoice{
		{Message: Message{Content: "a"}},
		{Message: Message{Content: "b"}},
	}}
	assert.Equal(t, "ab", resp.Text())
}

func TestError_Format(t *testing.T) {
	cause := errors.New("dial tcp")
	err := &Error{Code: ErrUpstreamError, Message: "bad gateway", Provider: "openai", Cause: cause}
	assert.Equal(t, "openai: [LLM_UPSTREAM_ERROR] bad gateway", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[LLM_UPSTREAM_ERROR] x", (&Error{Code: ErrUpstreamError, Message: "x"}).Error())
}
