package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/internal/tlsutil"
	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/llm/providers"
)

// BaseProvider 为嵌入提供者提供 HTTP 执行、错误映射与分批等公共能力.
type BaseProvider struct {
	name       string
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxBatch   int
}

// BaseConfig 基础提供者的公共配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
}

// NewBaseProvider 创建基础提供者.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	return &BaseProvider{
		name:       cfg.Name,
		client:     tlsutil.SecureHTTPClient(timeout),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Dimensions() int   { return p.dimensions }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

type embedFunc func(context.Context, *EmbeddingRequest) (*EmbeddingResponse, error)

// EmbedQuery 嵌入单个字符串.
func (p *BaseProvider) EmbedQuery(ctx context.Context, query string, embedFn embedFunc) ([]float64, error) {
	resp, err := embedFn(ctx, &EmbeddingRequest{Input: []string{query}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, &llm.Error{Code: llm.ErrEmptyResponse, Message: "no embeddings returned", Provider: p.name}
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 按批量上限分批嵌入，结果按输入顺序返回（以响应中的 index 对齐）.
func (p *BaseProvider) EmbedDocuments(ctx context.Context, documents []string, embedFn embedFunc) ([][]float64, error) {
	result := make([][]float64, len(documents))
	for start := 0; start < len(documents); start += p.maxBatch {
		end := min(start+p.maxBatch, len(documents))
		resp, err := embedFn(ctx, &EmbeddingRequest{Input: documents[start:end]})
		if err != nil {
			return nil, err
		}
		for _, emb := range resp.Embeddings {
			if emb.Index < 0 || start+emb.Index >= end {
				return nil, &llm.Error{
					Code:     llm.ErrUpstreamError,
					Message:  fmt.Sprintf("embedding index %d out of range", emb.Index),
					Provider: p.name,
				}
			}
			result[start+emb.Index] = emb.Embedding
		}
	}
	for i, vec := range result {
		if vec == nil {
			return nil, &llm.Error{
				Code:     llm.ErrEmptyResponse,
				Message:  fmt.Sprintf("no embedding returned for input %d", i),
				Provider: p.name,
			}
		}
	}
	return result, nil
}

// DoRequest 执行 HTTP 请求并映射错误状态.
func (p *BaseProvider) DoRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.UpstreamError(err, p.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.name)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.UpstreamError(fmt.Errorf("read response: %w", err), p.name)
	}
	return respBody, nil
}
