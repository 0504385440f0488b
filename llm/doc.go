// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供语言模型接入层：Provider 抽象、请求与响应模型、结构化错误，
以及包装 Provider 的中间件链。

# Provider 抽象

[Provider] 只有 Completion 与 Name 两个方法。路由、专业智能体、
综合回答与意图检查都通过 [Invoke] 这一最小契约调用模型，
测试中用 testutil/mocks 的 MockProvider 替换真实服务。

# 错误语义

Provider 返回 [*Error]，其中 Code 为 [ErrorCode]，Retryable 标识
是否值得重试。[IsUpstreamFailure] 区分上游故障与调用方错误，
熔断器据此计数。

# 中间件

[Wrap] 把中间件套在 Provider 外层，第一个中间件在最外层：

  - [RecoveryMiddleware]：把 panic 转为 [*PanicError]
  - [TracingMiddleware]：为每次补全创建 OpenTelemetry span
  - [MetricsMiddleware]：记录请求次数、耗时与 token 用量
  - [LoggingMiddleware]：结构化日志
  - [RetryMiddleware]：按 [RetryPolicy] 指数退避重试
  - [CircuitBreakerMiddleware]：连续失败后快速失败
  - [TimeoutMiddleware]：单次调用超时

# 相关子包

  - llm/providers/openai：OpenAI 兼容接口实现
  - llm/circuitbreaker：熔断器
  - llm/tools：工具注册、执行与 ReAct 循环
*/
package llm
