// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供各模型服务商适配器共享的基础层：错误映射、OpenAI 兼容
请求/响应结构与转换。具体适配器位于子包 openaicompat 与 anthropic。

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage：解析服务商错误响应体
  - ConvertMessagesToOpenAI / ToLLMChatResponse：OpenAI 兼容格式转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
