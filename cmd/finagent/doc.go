// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 finagent 服务端程序入口。

# 概述

cmd/finagent 把护栏、路由、编排与助手装配成可执行程序，提供 HTTP API、
单次提问、健康检查和版本查询等子命令。配置按 .env、YAML 文件、
FINAGENT_* 环境变量的顺序加载。

# 核心类型

  - App：按配置装配全部组件（Redis、审计库、模型 Provider、智能体、护栏），
    serve 与 ask 共用
  - Server：把 App 暴露为 HTTP API，负责路由、中间件链与优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、ask、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key）
  - /metrics 暴露 Prometheus 指标，/ready 检查 Redis 与审计库连通性
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
