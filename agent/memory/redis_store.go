package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "finagent:memory:"

// RedisStore 以 Redis 列表保存对话轮次
// 每个线程一个列表，写入时裁剪到 MaxTurns 并刷新 TTL
type RedisStore struct {
	client redis.Cmdable
	config Config
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 对话存储
func NewRedisStore(client redis.Cmdable, config Config, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultConfig().MaxTurns
	}
	return &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "conversation_memory_redis")),
	}
}

func (s *RedisStore) key(agentID, threadID string) string {
	return redisKeyPrefix + threadKey(agentID, threadID)
}

// History 实现 Store
func (s *RedisStore) History(ctx context.Context, agentID, threadID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(agentID, threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			s.logger.Warn("skipping malformed turn", zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append 实现 Store
func (s *RedisStore) Append(ctx context.Context, agentID, threadID string, turn Turn) error {
	if agentID == "" || threadID == "" {
		return fmt.Errorf("agent id and thread id are required")
	}
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	key := s.key(agentID, threadID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.config.MaxTurns), -1)
		if s.config.ThreadTTL > 0 {
			pipe.Expire(ctx, key, s.config.ThreadTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Clear 实现 Store
func (s *RedisStore) Clear(ctx context.Context, agentID, threadID string) error {
	if err := s.client.Del(ctx, s.key(agentID, threadID)).Err(); err != nil {
		return fmt.Errorf("clear thread: %w", err)
	}
	return nil
}
