// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 handlers 实现 finagent HTTP API 的请求处理器。

# 核心类型

  - QueryHandler：POST /api/v1/query 与 GET /api/v1/agents。护栏拒绝映射为
    RATE_LIMITED（429）或 GUARDRAILS_VIOLATED（400），错误 message 即面向用户的提示语。
  - UsageHandler：GET /api/v1/usage?session_id= 与 /api/v1/usage/global。
  - HealthHandler：/health、/healthz、/ready（执行注册的 HealthCheck）、/version。
  - Response：统一 JSON 响应结构（success + data + error + timestamp + request_id）。
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码和响应大小，供中间件使用。

# 请求校验

DecodeJSONBody 限制请求体 1MB 并拒绝未知字段；ValidateContentType 只接受
application/json；types.ErrorCode 到 HTTP 状态的映射见 types.StatusFor。
*/
package handlers
