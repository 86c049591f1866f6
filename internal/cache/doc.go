// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的共享缓存，主要用作语义匹配层的二级向量存储。

# 概述

Manager 封装 go-redis 客户端，负责连接初始化、后台健康检查与关闭。
多个进程共享同一 Redis 时，任一进程预热得到的嵌入向量可被其他进程直接复用。
向量以原始字符串的 SHA-256 加键前缀为键，过期时间由 VectorTTL 控制（0 表示不过期）。

# 核心类型

  - Manager：实现 semantic.VectorStore（LoadVector / StoreVector），
    另提供 Get/Set/GetJSON/SetJSON 通用读写
  - Config：地址、连接池、键前缀、单次操作超时与 TLS 开关

# 错误语义

  - ErrCacheMiss：键不存在；LoadVector 以 found=false 表示，不返回错误
  - ErrClosed：Close 之后的任何调用
*/
package cache
