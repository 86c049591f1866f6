package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// ErrEmbeddingUnavailable 模拟嵌入服务故障
var ErrEmbeddingUnavailable = errors.New("mock embedder: service unavailable")

// MockEmbedder 返回确定性向量的嵌入服务模拟。
// 预设向量优先；其余字符串按哈希生成固定向量，相同输入总得到相同输出。
type MockEmbedder struct {
	mu      sync.RWMutex
	vectors map[string][]float64
	failing map[string]bool
	failAll bool
	dims    int

	calls atomic.Int64
}

// NewMockEmbedder 创建维度为 dims 的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{
		vectors: make(map[string][]float64),
		failing: make(map[string]bool),
		dims:    dims,
	}
}

// WithVector 为 text 预设向量
func (e *MockEmbedder) WithVector(text string, vec []float64) *MockEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
	return e
}

// WithFailure 对 text 返回 ErrEmbeddingUnavailable
func (e *MockEmbedder) WithFailure(text string) *MockEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing[text] = true
	return e
}

// WithFailAll 所有调用都失败
func (e *MockEmbedder) WithFailAll() *MockEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAll = true
	return e
}

// EmbedQuery 实现 semantic.Embedder
func (e *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.failAll || e.failing[text] {
		return nil, ErrEmbeddingUnavailable
	}
	if vec, ok := e.vectors[text]; ok {
		return append([]float64(nil), vec...), nil
	}
	return hashVector(text, e.dims), nil
}

// Calls 返回 EmbedQuery 调用次数
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// hashVector 生成单位长度的确定性向量
func hashVector(text string, dims int) []float64 {
	vec := make([]float64, dims)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float64(h.Sum64()%2001)/1000 - 1
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		vec[0], norm = 1, 1
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// UnitVector 返回与 (1,0,...) 夹角余弦为 similarity 的二维以上向量，便于精确构造相似度
func UnitVector(similarity float64, dims int) []float64 {
	if dims < 2 {
		dims = 2
	}
	vec := make([]float64, dims)
	vec[0] = similarity
	vec[1] = math.Sqrt(math.Max(0, 1-similarity*similarity))
	return vec
}
