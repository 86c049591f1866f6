// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 telemetry 负责再生成流水线的 OpenTelemetry 初始化与关闭。

# 概述

Init 按 TelemetryConfig 创建 TracerProvider 与 MeterProvider，并注册为
全局实现；配置关闭时返回空的 Providers，不连接任何外部服务，Tracer
退回全局 noop 实现。开启时通过 OTLP gRPC 导出 span 与指标，采样策略为
ParentBased(TraceIDRatioBased)，上游已采样的请求整条链路都会保留。

# Span 布局

所有 span 使用同一个 instrumentation scope（InstrumentationName）：

  - regen.Regenerate：一次运行的根 span。属性 regen.run_id、regen.tag、
    regen.max_total_token_cost、regen.allow_warning_fallback；成功时追加
    regen.layer_used、regen.validated、regen.total_cost，失败时记录错误并
    置为 Error 状态。
  - regen.SemanticMatch：语义匹配层，属性 regen.substituted 为替换的枚举值个数。
  - regen.CritiqueRevise / regen.PartialRegeneration / regen.ModelEscalation：
    每次 LLM 修复尝试一个子 span，属性 regen.model、regen.max_tokens、
    regen.round、regen.token_cost；调用失败记录错误。

本地层（PreprocessNormalize、SyntaxRepair）不产生 span，只体现在运行结果
与审计记录中。

# 关闭

Shutdown 依次刷新并关闭 TracerProvider 与 MeterProvider，错误合并返回；
对 nil 或 noop Providers 调用是安全的。
*/
package telemetry
