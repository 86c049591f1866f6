// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package main 提供 regen 命令行程序入口。

# 概述

cmd/regen 把校验与恢复流水线包装为单次执行的命令：读取 JSON Schema
契约与一份模型原始输出，经 regen.Build 装配的完整运行时处理后，
把合规数据写到 stdout。日志统一写 stderr。

# 子命令

  - run：严格模式执行流水线；--advisory 允许告警兜底，--prompt 提供原始提示词
  - report：从审计库汇总结果分布与高频违规路径（数组下标折叠为 [*]）
  - version：输出构建注入的 Version、BuildTime、GitCommit

配置按 默认值 → YAML → REGEN_* 环境变量 的顺序加载。
*/
package main
