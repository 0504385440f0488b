// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 openai 提供 OpenAI Chat Completions（/v1/chat/completions）的 Provider
实现，同样适用于任何兼容该协议的网关。

# 核心结构体

  - Provider — 实现 llm.Provider，将 llm.ChatRequest 转换为线上格式
  - Config — 密钥、BaseURL、默认模型、温度与超时

# 支持能力

  - 原生 Function Calling（tools / tool_calls）
  - HTTP 状态码到 llm.Error 的映射，携带可重试标记
*/
package openai
