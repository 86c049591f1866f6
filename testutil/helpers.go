// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertJSONEqual(t, `{"a":1}`, got)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/maslennikov-ig/MC-2-sub003/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言 expected（JSON 文本）与 actual（任意值）语义相等
func AssertJSONEqual(t *testing.T, expected string, actual any) {
	t.Helper()
	got, err := json.Marshal(actual)
	require.NoError(t, err)
	assert.JSONEq(t, expected, string(got))
}

// AssertConformant 断言 data 满足契约
func AssertConformant(t *testing.T, c *schema.Contract, data any) {
	t.Helper()
	violations := schema.Validate(data, c)
	assert.Empty(t, violations, "unexpected violations: %v", violations)
}

// AssertViolationAt 断言 violations 中包含指定路径与类型的违规
func AssertViolationAt(t *testing.T, violations []schema.Violation, path string, kind schema.ViolationKind) {
	t.Helper()
	for _, v := range violations {
		if v.Path == path && v.Kind == kind {
			return
		}
	}
	t.Errorf("no %s violation at %q in %v", kind, path, violations)
}

// AssertEventuallyTrue 断言条件最终为 true
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition not met within %v", timeout)
	}
}

// =============================================================================
// ⏳ 等待辅助
// =============================================================================

// WaitFor 轮询等待条件满足
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// =============================================================================
// 📦 数据辅助
// =============================================================================

// MustJSON 序列化为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 为通用值，失败时 panic
func MustParseJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// MustContract 从 JSON Schema 文本构造契约，失败时 panic
func MustContract(s string) *schema.Contract {
	c, err := schema.FromJSONSchema([]byte(s))
	if err != nil {
		panic(err)
	}
	return c
}
