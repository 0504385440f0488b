package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/finagent/llm"
	"go.uber.org/zap"
)

// Turn 是一轮用户与助手的对话
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// Messages 将轮次展开为消息序列
func Messages(turns []Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out, llm.UserMessage(t.User), llm.AssistantMessage(t.Assistant))
	}
	return out
}

// Store 对话历史存储
type Store interface {
	// History 返回 (agentID, threadID) 的历史轮次，按时间升序
	History(ctx context.Context, agentID, threadID string) ([]Turn, error)
	// Append 追加一轮对话
	Append(ctx context.Context, agentID, threadID string, turn Turn) error
	// Clear 清空一个线程
	Clear(ctx context.Context, agentID, threadID string) error
}

// Config 记忆存储配置
type Config struct {
	// MaxTurns 每个线程保留的最大轮数
	MaxTurns int `yaml:"max_turns" json:"max_turns"`
	// MaxThreads 全局线程数上限，0 表示不限制
	MaxThreads int `yaml:"max_threads" json:"max_threads"`
	// ThreadTTL 线程闲置过期时间，0 表示不过期
	ThreadTTL time.Duration `yaml:"thread_ttl" json:"thread_ttl"`

	// Now 用于测试，默认 time.Now
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxTurns:  20,
		ThreadTTL: 24 * time.Hour,
	}
}

type thread struct {
	turns     []Turn
	updatedAt time.Time
}

// InMemoryStore 是带 TTL 和容量上限的进程内对话存储
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread

	config Config
	now    func() time.Time
	logger *zap.Logger
}

// NewInMemoryStore 创建进程内对话存储
func NewInMemoryStore(config Config, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultConfig().MaxTurns
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{
		threads: make(map[string]*thread),
		config:  config,
		now:     now,
		logger:  logger.With(zap.String("component", "conversation_memory")),
	}
}

func threadKey(agentID, threadID string) string {
	return agentID + ":" + threadID
}

// History 实现 Store
func (s *InMemoryStore) History(ctx context.Context, agentID, threadID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[threadKey(agentID, threadID)]
	if !ok || s.expired(th, s.now()) {
		return nil, nil
	}
	out := make([]Turn, len(th.turns))
	copy(out, th.turns)
	return out, nil
}

// Append 实现 Store
func (s *InMemoryStore) Append(ctx context.Context, agentID, threadID string, turn Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if agentID == "" || threadID == "" {
		return fmt.Errorf("agent id and thread id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if turn.At.IsZero() {
		turn.At = now
	}

	key := threadKey(agentID, threadID)
	th, ok := s.threads[key]
	if !ok || s.expired(th, now) {
		th = &thread{}
		s.threads[key] = th
	}
	th.turns = append(th.turns, turn)
	if over := len(th.turns) - s.config.MaxTurns; over > 0 {
		th.turns = append([]Turn(nil), th.turns[over:]...)
	}
	th.updatedAt = now

	s.cleanupExpiredLocked(now)
	s.evictIfNeededLocked()
	return nil
}

// Clear 实现 Store
func (s *InMemoryStore) Clear(ctx context.Context, agentID, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadKey(agentID, threadID))
	return nil
}

// Len 返回当前线程数
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *InMemoryStore) expired(th *thread, now time.Time) bool {
	return s.config.ThreadTTL > 0 && !now.Before(th.updatedAt.Add(s.config.ThreadTTL))
}

func (s *InMemoryStore) cleanupExpiredLocked(now time.Time) {
	if s.config.ThreadTTL <= 0 {
		return
	}
	for k, th := range s.threads {
		if s.expired(th, now) {
			delete(s.threads, k)
		}
	}
}

func (s *InMemoryStore) evictIfNeededLocked() {
	if s.config.MaxThreads <= 0 || len(s.threads) <= s.config.MaxThreads {
		return
	}

	type kv struct {
		key       string
		updatedAt time.Time
	}
	all := make([]kv, 0, len(s.threads))
	for k, th := range s.threads {
		all = append(all, kv{key: k, updatedAt: th.updatedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].updatedAt.Before(all[j].updatedAt)
	})

	toEvict := len(s.threads) - s.config.MaxThreads
	for i := 0; i < toEvict && i < len(all); i++ {
		delete(s.threads, all[i].key)
	}
	s.logger.Debug("evicted conversation threads", zap.Int("count", toEvict))
}
