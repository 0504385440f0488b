// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 finagent 的配置加载。
//
// 加载顺序为默认值、.env 文件、YAML 文件、环境变量。环境变量使用
// FINAGENT_ 前缀按结构体层级拼接，例如 FINAGENT_LLM_MODEL、
// FINAGENT_ORCHESTRATOR_MAX_WORKERS。同时兼容 OPENAI_API_KEY、LLM_MODEL、
// LLM_TEMPERATURE 与 ALPHA_VANTAGE_API_KEY。
package config
