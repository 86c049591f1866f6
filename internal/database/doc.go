// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接管理，供运行审计存储使用。

# 概述

Open 按配置选择 postgres、mysql 或 sqlite（纯 Go 实现）驱动并配置
连接池。Manager 统一管理连接生命周期，后台健康检查定时探活。

# 核心类型

  - Manager：持有 GORM 实例与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 多驱动：postgres、mysql、sqlite。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、sqlite 锁等瞬时错误指数退避重试。
*/
package database
