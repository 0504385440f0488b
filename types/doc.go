// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 types 定义 API 层共享的错误码与上下文键。

# 核心类型

  - Error / ErrorCode：结构化错误，带 HTTP 状态、Retryable 和 Provider 标记，
    handlers 按 Code 映射响应状态（见 StatusFor）。
  - 上下文传播：WithTraceID / WithRequestID / WithSessionID 及对应读取函数。
*/
package types
