// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 打开护栏审计库并管理其 GORM 连接池。

# 核心类型

  - [Open]：按配置打开数据库，当前使用纯 Go 的 sqlite 驱动。
  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()，
    后台定时探活；配置 [Observer] 后通过 GORM 回调记录每类操作的耗时，
    并在每次探活时上报连接数。
  - TransactionFunc：事务回调，WithTransactionRetry 对 "database is locked"
    等可重试错误做指数退避。
*/
package database
