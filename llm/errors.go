package llm

import (
	"context"
	"errors"
	"fmt"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 参数/格式错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // 未授权或密钥失效
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"            // 权限或内容策略拒绝
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 上游或本地限流
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"       // 额度/配额用尽
	ErrRoutingUnavailable  ErrorCode = "LLM_ROUTING_UNAVAILABLE"  // 无可用 Provider/模型
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"     // 模型过载
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"     // 上游超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 不可用
	ErrEmptyResponse       ErrorCode = "LLM_EMPTY_RESPONSE"       // 响应没有文本内容
)

// Error 是 LLM 与嵌入服务调用失败的统一错误类型。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsTimeout 报告错误是否为上游超时（包括 context 截止）。
func IsTimeout(err error) bool {
	var le *Error
	if errors.As(err, &le) && le.Code == ErrUpstreamTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable 报告错误是否被上游标记为可重试。
func IsRetryable(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Retryable
}

// wrapCallError 将 provider 返回的错误规范化为 *Error。
// 调用方 ctx 已取消时原样返回 ctx 错误，取消不是服务故障。
func wrapCallError(parent context.Context, err error, provider string) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:      ErrUpstreamTimeout,
			Message:   "call timed out",
			Retryable: true,
			Provider:  provider,
			Cause:     err,
		}
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{
		Code:      ErrUpstreamError,
		Message:   err.Error(),
		Retryable: true,
		Provider:  provider,
		Cause:     err,
	}
}
