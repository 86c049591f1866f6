// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供测试共享的辅助函数与 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertConformant / AssertViolationAt
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 数据工具: MustJSON / MustParseJSON / MustContract

# 子包

  - testutil/mocks: MockProvider（按脚本应答的 llm.Provider，支持
    Token 用量、延迟与错误注入）与 MockEmbedder（确定性向量）

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithText(`{"ok":true}`, 100, 20)
	gen := llm.NewGenerator(provider, llm.GeneratorConfig{}, nil)
*/
package testutil
