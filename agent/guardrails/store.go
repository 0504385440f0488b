package guardrails

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// WindowCounts 是会话在滑动窗口内的查询数
type WindowCounts struct {
	LastMinute int
	LastHour   int
}

// SessionStore 保存每个会话的查询时间戳
//
// 实现需满足：不同会话互不阻塞；Check 会清理超过保留期的时间戳。
type SessionStore interface {
	// Check 清理过期记录并返回窗口计数
	Check(ctx context.Context, sessionID string, now time.Time) (WindowCounts, error)
	// Record 记录一次通过校验的查询
	Record(ctx context.Context, sessionID string, now time.Time) error
	// Stats 返回单个会话的用量
	Stats(ctx context.Context, sessionID string, now time.Time) (SessionUsage, error)
	// Global 返回全局用量
	Global(ctx context.Context, now time.Time) (GlobalUsage, error)
	// Evict 删除闲置超过保留期的会话，返回删除数量
	Evict(ctx context.Context, now time.Time) (int, error)
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	// Retention 时间戳保留期，也是会话闲置淘汰阈值
	Retention time.Duration `yaml:"retention" json:"retention"`
	// ActiveWindow 活跃会话判定窗口
	ActiveWindow time.Duration `yaml:"active_window" json:"active_window"`
	// MaxSessions 会话数上限，0 表示不限制
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`
}

// DefaultStoreConfig 返回默认配置
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Retention:    time.Hour,
		ActiveWindow: 5 * time.Minute,
	}
}

const storeShards = 32

type sessionEntry struct {
	times []time.Time // 升序
}

func (s *sessionEntry) lastSeen() time.Time {
	if len(s.times) == 0 {
		return time.Time{}
	}
	return s.times[len(s.times)-1]
}

func (s *sessionEntry) prune(cutoff time.Time) {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i].After(cutoff) })
	if i > 0 {
		s.times = append(s.times[:0], s.times[i:]...)
	}
}

func (s *sessionEntry) countAfter(cutoff time.Time) int {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i].After(cutoff) })
	return len(s.times) - i
}

type storeShard struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// MemoryStore 进程内会话存储
// 会话按哈希分片加锁
type MemoryStore struct {
	config *StoreConfig
	shards [storeShards]*storeShard
	count  atomic.Int64
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore(config *StoreConfig) *MemoryStore {
	if config == nil {
		config = DefaultStoreConfig()
	}
	if config.Retention <= 0 {
		config.Retention = time.Hour
	}
	if config.ActiveWindow <= 0 {
		config.ActiveWindow = 5 * time.Minute
	}
	s := &MemoryStore{config: config}
	for i := range s.shards {
		s.shards[i] = &storeShard{sessions: make(map[string]*sessionEntry)}
	}
	return s
}

func (s *MemoryStore) shard(sessionID string) *storeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return s.shards[h.Sum32()%storeShards]
}

// Check 实现 SessionStore
func (s *MemoryStore) Check(_ context.Context, sessionID string, now time.Time) (WindowCounts, error) {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[sessionID]
	if !ok {
		return WindowCounts{}, nil
	}
	e.prune(now.Add(-s.config.Retention))
	return WindowCounts{
		LastMinute: e.countAfter(now.Add(-time.Minute)),
		LastHour:   e.countAfter(now.Add(-time.Hour)),
	}, nil
}

// Record 实现 SessionStore
func (s *MemoryStore) Record(_ context.Context, sessionID string, now time.Time) error {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	e, ok := sh.sessions[sessionID]
	if !ok {
		e = &sessionEntry{}
		sh.sessions[sessionID] = e
		s.count.Add(1)
	}
	// 保持升序，时钟回拨时插入到合适位置
	if n := len(e.times); n == 0 || !now.Before(e.times[n-1]) {
		e.times = append(e.times, now)
	} else {
		i := sort.Search(n, func(i int) bool { return e.times[i].After(now) })
		e.times = append(e.times, time.Time{})
		copy(e.times[i+1:], e.times[i:])
		e.times[i] = now
	}
	sh.mu.Unlock()

	if limit := s.config.MaxSessions; limit > 0 && int(s.count.Load()) > limit {
		s.evictOldest(int(s.count.Load())-limit, sessionID)
	}
	return nil
}

// evictOldest 按最近访问时间淘汰 n 个会话，keep 不参与淘汰
func (s *MemoryStore) evictOldest(n int, keep string) {
	type candidate struct {
		id   string
		seen time.Time
	}
	var all []candidate
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.sessions {
			if id != keep {
				all = append(all, candidate{id, e.lastSeen()})
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })

	for i := 0; i < n && i < len(all); i++ {
		sh := s.shard(all[i].id)
		sh.mu.Lock()
		if _, ok := sh.sessions[all[i].id]; ok {
			delete(sh.sessions, all[i].id)
			s.count.Add(-1)
		}
		sh.mu.Unlock()
	}
}

// Stats 实现 SessionStore
func (s *MemoryStore) Stats(_ context.Context, sessionID string, now time.Time) (SessionUsage, error) {
	usage := SessionUsage{SessionID: sessionID}

	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.sessions[sessionID]; ok {
		usage.TotalQueries = len(e.times)
		usage.QueriesLastHour = e.countAfter(now.Add(-time.Hour))
		usage.QueriesLastMinute = e.countAfter(now.Add(-time.Minute))
	}
	return usage, nil
}

// Global 实现 SessionStore
func (s *MemoryStore) Global(_ context.Context, now time.Time) (GlobalUsage, error) {
	var usage GlobalUsage
	activeCutoff := now.Add(-s.config.ActiveWindow)

	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.sessions {
			usage.TotalSessions++
			usage.TotalQueries += len(e.times)
			if len(e.times) > 0 && e.lastSeen().After(activeCutoff) {
				usage.ActiveSessions++
			}
		}
		sh.mu.Unlock()
	}
	return usage, nil
}

// Evict 实现 SessionStore
func (s *MemoryStore) Evict(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.config.Retention)
	evicted := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.sessions {
			if !e.lastSeen().After(cutoff) {
				delete(sh.sessions, id)
				evicted++
				continue
			}
			e.prune(cutoff)
		}
		sh.mu.Unlock()
	}
	s.count.Add(int64(-evicted))
	return evicted, nil
}

// Len 返回当前会话数
func (s *MemoryStore) Len() int {
	return int(s.count.Load())
}
