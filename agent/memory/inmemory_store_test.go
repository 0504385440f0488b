package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BaSui01/finagent/llm"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stores(t *testing.T, config Config) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"inmemory": NewInMemoryStore(config, zap.NewNop()),
		"redis":    NewRedisStore(client, config, zap.NewNop()),
	}
}

func TestStore_ThreadIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range stores(t, Config{MaxTurns: 10}) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, "finance_qa", "t1", Turn{User: "q1", Assistant: "a1"}))
			require.NoError(t, s.Append(ctx, "finance_qa", "t2", Turn{User: "q2", Assistant: "a2"}))
			require.NoError(t, s.Append(ctx, "tax_educator", "t1", Turn{User: "q3", Assistant: "a3"}))

			h, err := s.History(ctx, "finance_qa", "t1")
			require.NoError(t, err)
			require.Len(t, h, 1)
			assert.Equal(t, "q1", h[0].User)

			h, err = s.History(ctx, "tax_educator", "t1")
			require.NoError(t, err)
			require.Len(t, h, 1)
			assert.Equal(t, "a3", h[0].Assistant)

			h, err = s.History(ctx, "goal_planner", "t1")
			require.NoError(t, err)
			assert.Empty(t, h)

			require.NoError(t, s.Clear(ctx, "finance_qa", "t1"))
			h, err = s.History(ctx, "finance_qa", "t1")
			require.NoError(t, err)
			assert.Empty(t, h)
		})
	}
}

func TestStore_MaxTurns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range stores(t, Config{MaxTurns: 3}) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 5; i++ {
				require.NoError(t, s.Append(ctx, "a", "t", Turn{User: fmt.Sprintf("q%d", i), Assistant: fmt.Sprintf("a%d", i)}))
			}
			h, err := s.History(ctx, "a", "t")
			require.NoError(t, err)
			require.Len(t, h, 3)
			assert.Equal(t, "q3", h[0].User)
			assert.Equal(t, "q5", h[2].User)
		})
	}
}

func TestStore_RequiresIDs(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, DefaultConfig()) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Append(context.Background(), "", "t", Turn{}))
			assert.Error(t, s.Append(context.Background(), "a", "", Turn{}))
		})
	}
}

func TestInMemoryStore_TTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewInMemoryStore(Config{
		MaxTurns:  5,
		ThreadTTL: time.Hour,
		Now:       func() time.Time { return now },
	}, nil)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", "t", Turn{User: "q", Assistant: "r"}))
	now = now.Add(59 * time.Minute)
	h, err := s.History(ctx, "a", "t")
	require.NoError(t, err)
	assert.Len(t, h, 1)

	now = now.Add(2 * time.Minute)
	h, err = s.History(ctx, "a", "t")
	require.NoError(t, err)
	assert.Empty(t, h)

	// 过期线程被新的写入替换
	require.NoError(t, s.Append(ctx, "a", "t", Turn{User: "q2", Assistant: "r2"}))
	h, err = s.History(ctx, "a", "t")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "q2", h[0].User)
}

func TestInMemoryStore_MaxThreads(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewInMemoryStore(Config{
		MaxTurns:   5,
		MaxThreads: 2,
		Now:        func() time.Time { return now },
	}, nil)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.Append(ctx, "a", id, Turn{User: id}))
		now = now.Add(time.Second)
	}
	assert.Equal(t, 2, s.Len())

	h, err := s.History(ctx, "a", "t1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestInMemoryStore_CopyOnRead(t *testing.T) {
	t.Parallel()
	s := NewInMemoryStore(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "a", "t", Turn{User: "q", Assistant: "r"}))

	h, err := s.History(ctx, "a", "t")
	require.NoError(t, err)
	h[0].User = "mutated"

	h2, err := s.History(ctx, "a", "t")
	require.NoError(t, err)
	assert.Equal(t, "q", h2[0].User)
}

func TestMessages(t *testing.T) {
	msgs := Messages([]Turn{{User: "q1", Assistant: "a1"}, {User: "q2", Assistant: "a2"}})
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "q2", msgs[2].Content)
}
