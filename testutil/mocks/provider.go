// MockProvider 是按脚本应答的 llm.Provider 测试实现。
//
// 支持按调用顺序返回预设文本、按模型返回固定文本、Token 用量与错误注入。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/llm"
)

// ErrScriptExhausted 脚本中的应答已用完
var ErrScriptExhausted = errors.New("mock provider: script exhausted")

// Reply 单次调用的预设应答
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Err              error
	// Delay 在返回前等待，期间 ctx 结束则返回 ctx 错误
	Delay time.Duration
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Model     string
	Prompt    string
	MaxTokens int
	Reply     Reply
}

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name    string
	script  []Reply
	byModel map[string]Reply
	// 脚本用完后的默认应答，nil 表示返回 ErrScriptExhausted
	fallback *Reply

	calls []MockProviderCall
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock", byModel: make(map[string]Reply)}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithReplies 追加按顺序返回的应答
func (m *MockProvider) WithReplies(replies ...Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

// WithText 追加一个文本应答
func (m *MockProvider) WithText(text string, promptTokens, completionTokens int) *MockProvider {
	return m.WithReplies(Reply{Text: text, PromptTokens: promptTokens, CompletionTokens: completionTokens})
}

// WithModelReply 对指定模型总是返回 reply，优先于脚本
func (m *MockProvider) WithModelReply(model string, reply Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byModel[model] = reply
	return m
}

// WithDefault 设置脚本用完后的应答
func (m *MockProvider) WithDefault(reply Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &reply
	return m
}

// --- llm.Provider 实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Completion 返回下一条预设应答
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	reply := m.next(req)

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: m.Name(),
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: reply.Text},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
			TotalTokens:      reply.PromptTokens + reply.CompletionTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockProvider) next(req *llm.ChatRequest) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	reply, ok := m.byModel[req.Model]
	if !ok {
		switch {
		case len(m.script) > 0:
			reply = m.script[0]
			m.script = m.script[1:]
		case m.fallback != nil:
			reply = *m.fallback
		default:
			reply = Reply{Err: ErrScriptExhausted}
		}
	}

	call := MockProviderCall{Model: req.Model, MaxTokens: req.MaxTokens, Reply: reply}
	if n := len(req.Messages); n > 0 {
		call.Prompt = req.Messages[n-1].Content
	}
	m.calls = append(m.calls, call)
	return reply
}

// --- 调用记录 ---

// GetCalls 返回全部调用记录的副本
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// GetLastCall 返回最后一次调用，没有调用时返回 nil
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// --- 预设工厂 ---

// NewSuccessProvider 总是返回 text
func NewSuccessProvider(text string, promptTokens, completionTokens int) *MockProvider {
	return NewMockProvider().WithDefault(Reply{Text: text, PromptTokens: promptTokens, CompletionTokens: completionTokens})
}

// NewErrorProvider 总是返回 err
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithDefault(Reply{Err: err})
}
