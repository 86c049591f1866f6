// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 schema 描述 LLM 输出应满足的结构契约（Contract），并提供对解析后数据的
全量校验。校验是纯函数：一次遍历报告所有违规项，从不 panic。

# 主要类型

  - Contract：字段类型、必填、字符串/数组长度界限、枚举取值集合
  - Violation：单条违规：路径（点号/下标表示法）、类型、期望、实际值
  - ViolationKind：TypeMismatch / EnumViolation / MissingRequired /
    ExtraProperty / StructuralInvalid

# 辅助能力

  - Extract / Parse：从 markdown 代码块或夹杂文字中取出 JSON 并解析
  - Lookup / Set / Parent / CommonAncestor：基于路径的读写与子树定位
  - FromJSONSchema / Describe：与 JSON Schema 互转，用于 Prompt 渲染

# 典型用法

	c := schema.NewObject().
		AddProperty("title", schema.NewString().WithMinLength(1)).
		AddProperty("exercise_type", schema.NewEnum("case_study", "quiz")).
		AddRequired("title", "exercise_type")

	violations := schema.Validate(data, c)
*/
package schema
