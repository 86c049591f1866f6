package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/llm/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// messageOverhead 每次请求的消息封装开销（角色标记、分隔符）
const messageOverhead = 8

// Generation 是一次文本生成的结果与实际 token 用量。
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
	// Estimated 为 true 表示服务未报告用量，InputTokens/OutputTokens 为分词器估算值
	Estimated bool
}

// Cost 返回本次调用的 token 成本（输入 + 输出）。
func (g *Generation) Cost() int {
	if g == nil {
		return 0
	}
	return g.InputTokens + g.OutputTokens
}

// GeneratorConfig 生成器配置
type GeneratorConfig struct {
	// 未指定模型时使用的默认模型
	DefaultModel string `yaml:"default_model" json:"default_model"`
	// 单次调用超时，0 表示只受调用方 ctx 约束
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
	// 所有 worker 共享的速率限制（每秒请求数），0 表示不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	Temperature       float32 `yaml:"temperature" json:"temperature"`
	// 可选的系统提示词
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

type route struct {
	prefix   string
	provider Provider
}

// Generator 在 Provider 之上提供按模型路由、超时、限流与用量兜底。
// 可被多个 goroutine 并发使用。
type Generator struct {
	config   GeneratorConfig
	fallback Provider
	routes   []route
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewGenerator 创建生成器。fallback 处理所有未被路由命中的模型，可以为 nil。
func NewGenerator(fallback Provider, config GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		config:   config,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "llm_generator")),
	}
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return g
}

// Route 将以 prefix 开头的模型路由到 provider，最长前缀优先。
func (g *Generator) Route(prefix string, provider Provider) *Generator {
	g.routes = append(g.routes, route{prefix: prefix, provider: provider})
	sort.SliceStable(g.routes, func(i, j int) bool {
		return len(g.routes[i].prefix) > len(g.routes[j].prefix)
	})
	return g
}

// WithLimiter 使用外部共享的限流器（例如与嵌入调用共用）。
func (g *Generator) WithLimiter(l *rate.Limiter) *Generator {
	g.limiter = l
	return g
}

// DefaultModel 返回默认模型
func (g *Generator) DefaultModel() string { return g.config.DefaultModel }

func (g *Generator) providerFor(model string) Provider {
	for _, r := range g.routes {
		if strings.HasPrefix(model, r.prefix) {
			return r.provider
		}
	}
	return g.fallback
}

// EstimateTokens 估算 prompt 在 model 上的输入 token 数（含消息封装开销）。
func (g *Generator) EstimateTokens(prompt, model string) int {
	if model == "" {
		model = g.config.DefaultModel
	}
	n := tokenizer.Count(model, prompt) + messageOverhead
	if g.config.SystemPrompt != "" {
		n += tokenizer.Count(model, g.config.SystemPrompt) + messageOverhead/2
	}
	return n
}

// Generate 向 model 发送 prompt 并返回文本与用量。maxTokens <= 0 表示使用 provider 默认值。
// 失败时返回 *Error（超时为 ErrUpstreamTimeout）；调用方取消时返回 ctx 错误。
func (g *Generator) Generate(ctx context.Context, prompt, model string, maxTokens int) (*Generation, error) {
	if model == "" {
		model = g.config.DefaultModel
	}
	provider := g.providerFor(model)
	if provider == nil {
		return nil, &Error{
			Code:    ErrRoutingUnavailable,
			Message: fmt.Sprintf("no provider for model %q", model),
		}
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{
				Code:      ErrRateLimited,
				Message:   err.Error(),
				Retryable: true,
				Provider:  provider.Name(),
				Cause:     err,
			}
		}
	}

	req := &ChatRequest{
		Model:       model,
		Messages:    g.messages(prompt),
		MaxTokens:   maxTokens,
		Temperature: g.config.Temperature,
	}

	start := time.Now()
	resp, err := provider.Completion(callCtx, req)
	if err != nil {
		err = wrapCallError(ctx, err, provider.Name())
		g.logger.Warn("completion failed",
			zap.String("provider", provider.Name()),
			zap.String("model", model),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &Error{
			Code:      ErrEmptyResponse,
			Message:   "completion returned no choices",
			Retryable: true,
			Provider:  provider.Name(),
		}
	}

	gen := &Generation{
		Text:         resp.Text(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	if gen.Model == "" {
		gen.Model = model
	}
	if gen.InputTokens == 0 && gen.OutputTokens == 0 {
		gen.InputTokens = g.EstimateTokens(prompt, model)
		gen.OutputTokens = tokenizer.Count(model, gen.Text)
		gen.Estimated = true
	}

	g.logger.Debug("completion finished",
		zap.String("provider", provider.Name()),
		zap.String("model", gen.Model),
		zap.Int("input_tokens", gen.InputTokens),
		zap.Int("output_tokens", gen.OutputTokens),
		zap.Bool("estimated", gen.Estimated),
		zap.Duration("latency", time.Since(start)),
	)
	return gen, nil
}

func (g *Generator) messages(prompt string) []Message {
	msgs := make([]Message, 0, 2)
	if g.config.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: g.config.SystemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

func (g *Generator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, g.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}
