// Package config 提供再生成流水线的进程级配置管理。
//
// 配置按 默认值 → YAML 文件 → 环境变量（REGEN_ 前缀）的顺序加载，
// 并提供日志初始化与同义词表读取。单次调用的参数由 regen.Config 承载，
// 本包只提供它的默认值。
package config
