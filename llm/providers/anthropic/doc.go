// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 基于官方 anthropic-sdk-go 实现 llm.Provider，
通常作为模型升级（escalation）层的强模型供应方。

# 协议差异

  - system 消息从 messages 中提取，单独传递到 system 字段
  - 响应 content 为数组，仅拼接 text 类型块
  - 用量来自 usage.input_tokens / usage.output_tokens
  - SDK 内置重试被关闭，重试策略由调用方决定
*/
package anthropic
