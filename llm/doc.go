// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
包 llm 提供恢复流水线使用的大语言模型接入层。

# 概述

上层只依赖 [Generator.Generate]：给定 prompt、模型与输出上限，返回文本与
实际 token 用量。[Generator] 负责按模型前缀路由到 [Provider]、单次调用超时、
跨 worker 共享的速率限制，以及服务未报告用量时的分词器兜底估算。

# 错误语义

所有失败都规范化为 [*Error]：
  - 调用超时为 [ErrUpstreamTimeout]，可用 [IsTimeout] 判断
  - 其他上游错误保留 provider 给出的错误码
  - 调用方取消 ctx 时直接返回 ctx 错误，不包装为服务故障

# 子包

  - providers/openaicompat：OpenAI 兼容的 Chat Completions 适配器
  - providers/anthropic：基于 anthropic-sdk-go 的 Messages 适配器
  - embedding：OpenAI 嵌入接口
  - tokenizer：tiktoken 计数与估算器
  - retry：调用方级别的指数退避重试
*/
package llm
