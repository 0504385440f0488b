package guardrails

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "finagent:session:"
	redisSessionIndex  = "finagent:sessions"
)

// RedisStore 基于 Redis 有序集合的会话存储，支持多实例共享限流状态
//
// 每个会话一个 ZSET，score 为微秒时间戳；索引 ZSET 记录会话最近访问时间。
type RedisStore struct {
	client redis.Cmdable
	config *StoreConfig
}

// NewRedisStore 创建 Redis 会话存储
func NewRedisStore(client redis.Cmdable, config *StoreConfig) *RedisStore {
	if config == nil {
		config = DefaultStoreConfig()
	}
	if config.Retention <= 0 {
		config.Retention = time.Hour
	}
	if config.ActiveWindow <= 0 {
		config.ActiveWindow = 5 * time.Minute
	}
	return &RedisStore{client: client, config: config}
}

func sessionKey(sessionID string) string {
	return redisSessionPrefix + sessionID
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// exclusive 返回开区间下界
func exclusive(t time.Time) string {
	return "(" + score(t)
}

// Check 实现 SessionStore
func (s *RedisStore) Check(ctx context.Context, sessionID string, now time.Time) (WindowCounts, error) {
	key := sessionKey(sessionID)

	var minute, hour *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(now.Add(-s.config.Retention)))
		minute = pipe.ZCount(ctx, key, exclusive(now.Add(-time.Minute)), "+inf")
		hour = pipe.ZCount(ctx, key, exclusive(now.Add(-time.Hour)), "+inf")
		return nil
	})
	if err != nil {
		return WindowCounts{}, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	return WindowCounts{LastMinute: int(minute.Val()), LastHour: int(hour.Val())}, nil
}

// Record 实现 SessionStore
func (s *RedisStore) Record(ctx context.Context, sessionID string, now time.Time) error {
	key := sessionKey(sessionID)
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		pipe.Expire(ctx, key, s.config.Retention)
		pipe.ZAdd(ctx, redisSessionIndex, redis.Z{Score: float64(now.UnixMicro()), Member: sessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record session %s: %w", sessionID, err)
	}

	if limit := s.config.MaxSessions; limit > 0 {
		// 索引按最近访问时间排序，超出上限的最旧会话被移除
		n, err := s.client.ZCard(ctx, redisSessionIndex).Result()
		if err == nil && n > int64(limit) {
			stale, err := s.client.ZRange(ctx, redisSessionIndex, 0, n-int64(limit)-1).Result()
			if err == nil {
				s.remove(ctx, stale)
			}
		}
	}
	return nil
}

// Stats 实现 SessionStore
func (s *RedisStore) Stats(ctx context.Context, sessionID string, now time.Time) (SessionUsage, error) {
	key := sessionKey(sessionID)
	usage := SessionUsage{SessionID: sessionID}

	var total, hour, minute *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		total = pipe.ZCard(ctx, key)
		hour = pipe.ZCount(ctx, key, exclusive(now.Add(-time.Hour)), "+inf")
		minute = pipe.ZCount(ctx, key, exclusive(now.Add(-time.Minute)), "+inf")
		return nil
	})
	if err != nil {
		return usage, fmt.Errorf("stats for session %s: %w", sessionID, err)
	}
	usage.TotalQueries = int(total.Val())
	usage.QueriesLastHour = int(hour.Val())
	usage.QueriesLastMinute = int(minute.Val())
	return usage, nil
}

// Global 实现 SessionStore
func (s *RedisStore) Global(ctx context.Context, now time.Time) (GlobalUsage, error) {
	var usage GlobalUsage

	sessions, err := s.client.ZRangeByScoreWithScores(ctx, redisSessionIndex, &redis.ZRangeBy{
		Min: exclusive(now.Add(-s.config.Retention)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return usage, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return usage, nil
	}

	activeCutoff := float64(now.Add(-s.config.ActiveWindow).UnixMicro())
	counts := make([]*redis.IntCmd, len(sessions))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range sessions {
			counts[i] = pipe.ZCard(ctx, sessionKey(z.Member.(string)))
		}
		return nil
	})
	if err != nil {
		return usage, fmt.Errorf("count session queries: %w", err)
	}

	for i, z := range sessions {
		usage.TotalSessions++
		usage.TotalQueries += int(counts[i].Val())
		if z.Score > activeCutoff {
			usage.ActiveSessions++
		}
	}
	return usage, nil
}

// Evict 实现 SessionStore
func (s *RedisStore) Evict(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.client.ZRangeByScore(ctx, redisSessionIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: score(now.Add(-s.config.Retention)),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}
	if err := s.remove(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *RedisStore) remove(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	members := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = sessionKey(id)
		members[i] = id
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisSessionIndex, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove sessions: %w", err)
	}
	return nil
}
