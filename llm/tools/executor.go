package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/finagent/llm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// TextFunc 是返回纯文本的工具函数；金融工具都以文本作答。
type TextFunc func(ctx context.Context, args json.RawMessage) (string, error)

// FromText 将 TextFunc 适配为 ToolFunc，结果编码为 JSON 字符串。
func FromText(fn TextFunc) ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		text, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(text)
	}
}

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema    llm.ToolSchema   // Tool JSON Schema
	RateLimit *RateLimitConfig // Rate limit config (optional)
	Timeout   time.Duration    // Execution timeout (default 30s)
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Text 返回结果的文本形式；失败时返回格式化的错误文本。
func (r ToolResult) Text() string {
	if r.Error != "" {
		return fmt.Sprintf("Error executing %s: %s", r.Name, r.Error)
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// ToMessage 将工具结果转换为 tool 角色消息。
func (r ToolResult) ToMessage() llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Name:       r.Name,
		Content:    r.Text(),
		ToolCallID: r.ToolCallID,
	}
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []llm.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult
	ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult
}

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	limiters map[string]*rate.Limiter // 工具级别的速率限制器
	logger   *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rl.Window / time.Duration(rl.MaxCalls)
		r.limiters[name] = rate.NewLimiter(rate.Every(every), rl.MaxCalls)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// List 按名称排序返回全部 Schema。
func (r *DefaultRegistry) List() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Names 返回已注册工具名（排序）。
func (r *DefaultRegistry) Names() []string {
	schemas := r.List()
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// ====== 实现：DefaultExecutor ======

type DefaultExecutor struct {
	registry ToolRegistry
	logger   *zap.Logger
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
}

// Execute 并发执行所有工具调用，结果顺序与调用顺序一致。
func (e *DefaultExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c llm.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) (result ToolResult) {
	start := time.Now()
	result = ToolResult{ToolCallID: call.ID, Name: call.Name}
	defer func() { result.Duration = time.Since(start) }()

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return result
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		result.Error = "rate limit exceeded"
		e.logger.Warn("tool rate limit exceeded", zap.String("name", call.Name))
		return result
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		result.Error = "invalid arguments: not valid JSON"
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 带缓冲，超时后 goroutine 仍可退出
	doneChan := make(chan struct {
		res json.RawMessage
		err error
	}, 1)

	go func() {
		var (
			res json.RawMessage
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool panicked: %v", r)
			}
			doneChan <- struct {
				res json.RawMessage
				err error
			}{res, err}
		}()
		res, err = fn(execCtx, call.Arguments)
	}()

	select {
	case done := <-doneChan:
		if errors.Is(done.err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
			e.logger.Warn("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", meta.Timeout))
			return result
		}
		if done.err != nil {
			result.Error = done.err.Error()
			e.logger.Warn("tool execution failed", zap.String("name", call.Name), zap.Error(done.err))
			return result
		}
		result.Result = done.res
		e.logger.Debug("tool executed", zap.String("name", call.Name), zap.Duration("duration", time.Since(start)))
	case <-execCtx.Done():
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		e.logger.Warn("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", meta.Timeout))
	}

	return result
}
