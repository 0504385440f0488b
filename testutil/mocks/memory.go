// =============================================================================
// 🧠 MockMemoryStore - 对话记忆存储模拟实现
// =============================================================================
// 实现 memory.Store，支持错误注入与调用记录
//
// 使用方法:
//
//	store := mocks.NewMockMemoryStore().WithHistoryError(errors.New("redis down"))
//	agent, _ := agent.NewFinanceAgent(id, provider, nil, store, cfg, logger)
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/finagent/agent/memory"
)

// MockMemoryStore 是 memory.Store 的模拟实现，按 agentID/threadID 存储轮次
type MockMemoryStore struct {
	mu sync.Mutex

	threads map[string][]memory.Turn

	// 错误注入
	historyErr error
	appendErr  error
	clearErr   error

	// 调用计数
	historyCalls int
	appendCalls  int
}

// NewMockMemoryStore 创建新的 MockMemoryStore
func NewMockMemoryStore() *MockMemoryStore {
	return &MockMemoryStore{threads: make(map[string][]memory.Turn)}
}

// WithHistoryError 设置 History 返回的错误
func (m *MockMemoryStore) WithHistoryError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyErr = err
	return m
}

// WithAppendError 设置 Append 返回的错误
func (m *MockMemoryStore) WithAppendError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

// WithClearError 设置 Clear 返回的错误
func (m *MockMemoryStore) WithClearError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErr = err
	return m
}

// WithTurns 预置一个线程的历史
func (m *MockMemoryStore) WithTurns(agentID, threadID string, turns ...memory.Turn) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := agentID + "/" + threadID
	m.threads[key] = append(m.threads[key], turns...)
	return m
}

// =============================================================================
// 🎯 memory.Store 实现
// =============================================================================

func (m *MockMemoryStore) History(_ context.Context, agentID, threadID string) ([]memory.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	turns := m.threads[agentID+"/"+threadID]
	out := make([]memory.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MockMemoryStore) Append(_ context.Context, agentID, threadID string, turn memory.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	key := agentID + "/" + threadID
	m.threads[key] = append(m.threads[key], turn)
	return nil
}

func (m *MockMemoryStore) Clear(_ context.Context, agentID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.threads, agentID+"/"+threadID)
	return nil
}

// =============================================================================
// 🔍 查询方法
// =============================================================================

// HistoryCalls 返回 History 调用次数
func (m *MockMemoryStore) HistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls
}

// AppendCalls 返回 Append 调用次数（含失败的调用）
func (m *MockMemoryStore) AppendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCalls
}

// Turns 返回线程中保存的轮次
func (m *MockMemoryStore) Turns(agentID, threadID string) []memory.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.threads[agentID+"/"+threadID]
	out := make([]memory.Turn, len(turns))
	copy(out, turns)
	return out
}

var _ memory.Store = (*MockMemoryStore)(nil)
