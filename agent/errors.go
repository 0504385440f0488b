package agent

import "errors"

var (
	// ErrProviderNotSet LLM Provider 未设置
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrUnknownAgent 标识不在五类智能体之内
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrAgentNotRegistered 注册表缺少某个智能体
	ErrAgentNotRegistered = errors.New("agent not registered")

	// ErrEmptyResponse 模型没有给出最终文本
	ErrEmptyResponse = errors.New("agent produced no response")

	// ErrConfigInvalid 配置无效
	ErrConfigInvalid = errors.New("invalid agent config")
)
