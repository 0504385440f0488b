package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/finagent/agent/memory"
	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/llm/tools"
	"go.uber.org/zap"
)

// DefaultThreadID 调用方未提供线程时使用
const DefaultThreadID = "default"

// Agent 接受查询和线程标识并返回文本
// 同一线程的多次调用可见先前轮次，不同线程完全隔离
type Agent interface {
	ID() ID
	Invoke(ctx context.Context, query, threadID string) (string, error)
	Info() Info
}

// Info 智能体的只读描述
type Info struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ToolCount   int      `json:"tool_count"`
	Tools       []string `json:"tools"`
}

// Config 单个智能体的模型参数
type Config struct {
	Model         string        `yaml:"model" json:"model"`
	Temperature   float32       `yaml:"temperature" json:"temperature"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`
	MaxIterations int           `yaml:"max_iterations" json:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model:         "gpt-4o-mini",
		Temperature:   0.3,
		MaxTokens:     2000,
		MaxIterations: 6,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range [0,2]", ErrConfigInvalid, c.Temperature)
	}
	if c.MaxTokens < 0 || c.MaxIterations < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: negative limits", ErrConfigInvalid)
	}
	return nil
}

// ====== FinanceAgent ======

// FinanceAgent 绑定系统提示词、工具集和模型
// 每次调用运行一次 ReAct 循环，成功后把本轮写入 (agent, thread) 记忆
type FinanceAgent struct {
	id       ID
	provider llm.Provider
	registry tools.ToolRegistry
	react    *tools.ReActExecutor
	memory   memory.Store
	config   Config
	logger   *zap.Logger
}

// NewFinanceAgent 创建智能体，store 为 nil 时使用进程内记忆
func NewFinanceAgent(id ID, provider llm.Provider, registry tools.ToolRegistry, store memory.Store, config Config, logger *zap.Logger) (*FinanceAgent, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, uint8(id))
	}
	if provider == nil {
		return nil, ErrProviderNotSet
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = tools.NewDefaultRegistry(logger)
	}
	if store == nil {
		store = memory.NewInMemoryStore(memory.DefaultConfig(), logger)
	}

	logger = logger.With(zap.String("component", "agent"), zap.Stringer("agent_id", id))
	return &FinanceAgent{
		id:       id,
		provider: provider,
		registry: registry,
		react: tools.NewReActExecutor(provider, tools.NewDefaultExecutor(registry, logger), tools.ReActConfig{
			MaxIterations: config.MaxIterations,
		}, logger),
		memory: store,
		config: config,
		logger: logger,
	}, nil
}

// ID 实现 Agent
func (a *FinanceAgent) ID() ID { return a.id }

// Invoke 实现 Agent
func (a *FinanceAgent) Invoke(ctx context.Context, query, threadID string) (string, error) {
	if threadID == "" {
		threadID = DefaultThreadID
	}
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	a.logger.Debug("agent invoked",
		zap.String("thread_id", threadID),
		zap.Int("query_len", len(query)),
	)

	history, err := a.memory.History(ctx, a.id.String(), threadID)
	if err != nil {
		// 记忆不可用时按无历史继续
		a.logger.Warn("load history failed", zap.Error(err))
		history = nil
	}

	messages := make([]llm.Message, 0, len(history)*2+2)
	messages = append(messages, llm.SystemMessage(a.id.SystemPrompt()))
	messages = append(messages, memory.Messages(history)...)
	messages = append(messages, llm.UserMessage(query))

	temperature := a.config.Temperature
	req := &llm.ChatRequest{
		Model:       a.config.Model,
		Messages:    messages,
		MaxTokens:   a.config.MaxTokens,
		Temperature: &temperature,
		Tools:       a.registry.List(),
		Metadata:    map[string]string{"agent_id": a.id.String(), "thread_id": threadID},
	}

	start := time.Now()
	resp, steps, err := a.react.Execute(ctx, req)
	if err != nil {
		a.logger.Error("agent invocation failed", zap.Error(err), zap.Int("steps", len(steps)))
		return "", fmt.Errorf("%s: %w", a.id, err)
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.id, err)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", a.id, ErrEmptyResponse)
	}

	if err := a.memory.Append(ctx, a.id.String(), threadID, memory.Turn{User: query, Assistant: text}); err != nil {
		a.logger.Warn("save turn failed", zap.Error(err))
	}

	a.logger.Debug("agent completed",
		zap.Int("steps", len(steps)),
		zap.Int("response_len", len(text)),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

// Info 实现 Agent
func (a *FinanceAgent) Info() Info {
	schemas := a.registry.List()
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	return Info{
		ID:          a.id,
		Name:        a.id.DisplayName(),
		Description: a.id.Description(),
		ToolCount:   len(names),
		Tools:       names,
	}
}
