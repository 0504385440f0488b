// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按顺序的脚本响应、工具调用与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/finagent/llm"
)

// ErrMockFailure 是 WithFailAfter 触发时返回的错误
var ErrMockFailure = errors.New("mock provider: simulated failure")

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	response       string
	script         []llm.Message
	err            error
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	delay     time.Duration
	failAfter int
	callCount int
	calls     []*llm.ChatRequest
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 按顺序返回给定消息，耗尽后回落到固定响应
func (m *MockProvider) WithScript(msgs ...llm.Message) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, msgs...)
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string { return "mock" }

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	m.calls = append(m.calls, cloneRequest(req))
	count := m.callCount
	delay := m.delay
	fn := m.completionFunc
	err := m.err
	failAfter := m.failAfter
	var msg llm.Message
	if len(m.script) > 0 {
		msg = m.script[0]
		m.script = m.script[1:]
	} else {
		msg = llm.AssistantMessage(m.response)
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if failAfter > 0 && count > failAfter {
		return nil, ErrMockFailure
	}

	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	return &llm.ChatResponse{
		ID:       "mock-response",
		Provider: "mock",
		Model:    "mock-model",
		Choices:  []llm.ChatChoice{{Index: 0, FinishReason: "stop", Message: msg}},
		Usage:    llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Calls 返回所有调用的请求副本
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall 返回最后一次调用的请求
func (m *MockProvider) LastCall() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func cloneRequest(req *llm.ChatRequest) *llm.ChatRequest {
	if req == nil {
		return nil
	}
	c := *req
	c.Messages = append([]llm.Message(nil), req.Messages...)
	return &c
}

// TextResponse 构造只含文本的响应
func TextResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Provider: "mock",
		Model:    "mock-model",
		Choices:  []llm.ChatChoice{{FinishReason: "stop", Message: llm.AssistantMessage(content)}},
	}
}
