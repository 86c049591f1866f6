package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/maslennikov-ig/MC-2-sub003/internal/tlsutil"
	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/llm/providers"
	"go.uber.org/zap"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Config Anthropic Provider 配置
type Config struct {
	providers.BaseProviderConfig `yaml:",inline"`
}

// Provider 基于 anthropic-sdk-go 的 Messages API 适配器
type Provider struct {
	client sdk.Client
	cfg    Config
	logger *zap.Logger
}

// New 创建 Anthropic Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(timeout)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		client: sdk.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With(zap.String("provider", providerName)),
	}
}

// Name 返回 Provider 标识
func (p *Provider) Name() string { return providerName }

// Completion 实现 llm.Provider
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req.Model, p.cfg.Model, defaultModel)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	return toChatResponse(msg), nil
}

func (p *Provider) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		p.logger.Debug("messages request rejected", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		mapped := providers.MapHTTPError(apiErr.StatusCode, apiErr.Error(), providerName)
		mapped.Cause = err
		return mapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return providers.UpstreamError(err, providerName)
}

func toChatResponse(msg *sdk.Message) *llm.ChatResponse {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return &llm.ChatResponse{
		ID:       msg.ID,
		Provider: providerName,
		Model:    string(msg.Model),
		Choices: []llm.ChatChoice{{
			FinishReason: string(msg.StopReason),
			Message:      llm.Message{Role: llm.RoleAssistant, Content: sb.String()},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		CreatedAt: time.Now(),
	}
}
