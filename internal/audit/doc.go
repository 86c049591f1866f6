// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 audit 持久化恢复流水线的运行历史，用于诊断与契约改进，
不保存最终的业务数据。

# 数据表

  - regen_runs：每次运行一行，记录结果、最终层、总成本与耗时
  - regen_attempts：按序记录每次修复尝试
  - regen_violations：首次校验发现的违规，数组下标折叠为 [*]

# 查询

  - FindRun：按 RunID 读取完整历史
  - RecurringViolationPaths：按出现次数排序的违规路径模式，
    指出应当收紧的提示词或契约字段
  - OutcomeCounts：各结果的运行次数

写入通过 database.Manager.WithTransactionRetry 完成，瞬时锁错误会重试。
*/
package audit
