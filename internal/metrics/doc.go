// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的再生成流水线指标采集能力。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。Registerer 由调用方
注入（测试中使用独立 Registry），所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 向量指标；
    所有记录方法对 nil 接收者安全。

# 主要能力

  - 运行指标：按结果（success/fallback/exhausted/budget_exceeded/canceled/error）
    与最终层统计运行次数、耗时与总 token 成本。
  - 分层指标：每层尝试次数（成功/失败）、耗时与 token 用量。
  - 违规指标：violations_total{path,kind}，数组下标折叠为 [*]，
    用于发现反复出错的字段并回流到 schema 设计。
  - 外部统计：嵌入缓存、工作池、数据库连接池通过 GaugeFunc/CounterFunc
    在采集时按需读取。
*/
package metrics
