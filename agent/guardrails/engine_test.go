package guardrails

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedRejection struct {
	direction, reason string
}

type fakeRecorder struct {
	mu         sync.Mutex
	rejections []recordedRejection
	softened   []string
}

func (r *fakeRecorder) RecordGuardrailRejection(direction, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, recordedRejection{direction, reason})
}

func (r *fakeRecorder) RecordOutputSoftened(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.softened = append(r.softened, pattern)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEngine(nil, nil, nil, opts...), clock
}

// ============================================================================
// 输入校验
// ============================================================================

func TestEngine_ValidateInput(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		wantValid     bool
		wantSanitized string
		wantCode      string
		wantContains  string
	}{
		{name: "simple question", query: "What is a stock?", wantValid: true, wantSanitized: "What is a stock?"},
		{name: "whitespace collapsed", query: "  What   is\t\tan  ETF?\n", wantValid: true, wantSanitized: "What is an ETF?"},
		{name: "repeats collapsed", query: "Is this a bubble??????", wantValid: true, wantSanitized: "Is this a bubble???"},
		{name: "empty", query: "", wantCode: ErrCodeEmptyQuery, wantContains: MsgEmptyQuery},
		{name: "whitespace only", query: " \t\n ", wantCode: ErrCodeEmptyQuery, wantContains: MsgEmptyQuery},
		{name: "control characters only", query: "\x00\x01\x02", wantCode: ErrCodeEmptyQuery, wantContains: MsgEmptyQuery},
		{
			name:         "too long",
			query:        strings.Repeat("ab", 1001),
			wantCode:     ErrCodeMaxLengthExceeded,
			wantContains: "⚠️ Your question is too long. Please limit to 2000 characters (current: 2002).",
		},
		{
			name:         "prohibited topic",
			query:        "How do I run a Pump and Dump on small caps?",
			wantCode:     ErrCodeProhibitedTopic,
			wantContains: "I cannot assist with questions about pump and dump",
		},
		{name: "sql injection", query: "'; DROP TABLE users; --", wantCode: ErrCodeSQLInjection, wantContains: "cannot be processed"},
		{name: "union select", query: "show me union   select of prices", wantCode: ErrCodeSQLInjection, wantContains: MsgSQLInjection},
		{name: "script tag", query: "<script>alert(1)</script>", wantCode: ErrCodeScriptInjection, wantContains: MsgScript},
		{name: "event handler", query: "img onerror = x", wantCode: ErrCodeScriptInjection, wantContains: MsgScript},
		{name: "special characters", query: "@#@#@#@#@#@# stock", wantCode: ErrCodeSpecialChars, wantContains: MsgSpecialChars},
		{name: "allowed punctuation", query: "Is $100 (or 5%) enough, really?!", wantValid: true, wantSanitized: "Is $100 (or 5%) enough, really?!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			res := e.ValidateInput(context.Background(), tt.query, "s1")

			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantValid {
				assert.Equal(t, tt.wantSanitized, res.Sanitized)
				assert.Empty(t, res.Error)
				return
			}
			assert.Empty(t, res.Sanitized)
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Contains(t, res.Error, tt.wantContains)
		})
	}
}

func TestEngine_ProhibitedMessageListsTopics(t *testing.T) {
	e, _ := newTestEngine(t)
	res := e.ValidateInput(context.Background(), "tell me about ponzi scheme returns", "s1")
	require.False(t, res.Valid)
	assert.True(t, strings.HasPrefix(res.Error, "⚠️ I cannot assist with questions about ponzi scheme."))
	assert.Contains(t, res.Error, "- Retirement planning")
	assert.Contains(t, res.Error, "- Tax-advantaged accounts")
}

func TestEngine_RateLimitPerMinute(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res := e.ValidateInput(ctx, "What is a bond?", "burst")
		require.True(t, res.Valid, "query %d", i+1)
		clock.Advance(time.Second)
	}

	res := e.ValidateInput(ctx, "What is a bond?", "burst")
	assert.False(t, res.Valid)
	assert.Equal(t, ErrCodeRateLimitMinute, res.Code)
	assert.Equal(t, "⚠️ Too many requests. Please wait a moment before asking another question. (Limit: 10 per minute)", res.Error)

	// 其他会话不受影响
	assert.True(t, e.ValidateInput(ctx, "What is a bond?", "other").Valid)

	clock.Advance(time.Minute)
	assert.True(t, e.ValidateInput(ctx, "What is a bond?", "burst").Valid)
}

func TestEngine_RateLimitPerHour(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.True(t, e.ValidateInput(ctx, "What is an index fund?", "steady").Valid, "query %d", i+1)
		clock.Advance(7 * time.Second)
	}

	res := e.ValidateInput(ctx, "What is an index fund?", "steady")
	assert.False(t, res.Valid)
	assert.Equal(t, ErrCodeRateLimitHour, res.Code)
	assert.Equal(t, "⚠️ You've reached the hourly limit of 100 questions. Please try again later.", res.Error)

	clock.Advance(time.Hour)
	assert.True(t, e.ValidateInput(ctx, "What is an index fund?", "steady").Valid)
}

func TestEngine_LengthCheckedBeforeRateLimit(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.True(t, e.ValidateInput(ctx, "hi there", "s").Valid)
	}
	assert.Equal(t, ErrCodeEmptyQuery, e.ValidateInput(ctx, "   ", "s").Code)
	assert.Equal(t, ErrCodeMaxLengthExceeded, e.ValidateInput(ctx, strings.Repeat("x", 2001), "s").Code)
	assert.Equal(t, ErrCodeRateLimitMinute, e.ValidateInput(ctx, "insider trading", "s").Code)
}

func TestEngine_UsageCountsOnlyAcceptedQueries(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	const n = 7
	for i := 0; i < n; i++ {
		require.True(t, e.ValidateInput(ctx, "How do dividends work?", "u1").Valid)
		clock.Advance(time.Second)
	}
	require.False(t, e.ValidateInput(ctx, "get rich quick ideas", "u1").Valid)
	require.False(t, e.ValidateInput(ctx, "", "u1").Valid)

	usage, err := e.UsageStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", usage.SessionID)
	assert.Equal(t, n, usage.TotalQueries)
	assert.Equal(t, n, usage.QueriesLastHour)
	assert.Equal(t, n, usage.QueriesLastMinute)

	clock.Advance(2 * time.Minute)
	usage, err = e.UsageStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.QueriesLastMinute)
	assert.Equal(t, n, usage.QueriesLastHour)

	unknown, err := e.UsageStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, SessionUsage{SessionID: "nobody"}, unknown)
}

func TestEngine_CancelledContextHidesRawError(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.ValidateInput(ctx, "How do dividends work?", "u1")
	assert.False(t, res.Valid)
	assert.Equal(t, ErrCodeValidationFailed, res.Code)
	assert.Equal(t, MsgValidationUnavailable, res.Error)
	assert.NotContains(t, res.Error, "context canceled")

	usage, err := e.UsageStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, usage.TotalQueries)
}

func TestEngine_GlobalStats(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	require.True(t, e.ValidateInput(ctx, "What is a Roth IRA?", "a").Valid)
	require.True(t, e.ValidateInput(ctx, "What is a 401k?", "a").Valid)
	clock.Advance(10 * time.Minute)
	require.True(t, e.ValidateInput(ctx, "What is an HSA?", "b").Valid)

	global, err := e.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, GlobalUsage{TotalSessions: 2, TotalQueries: 3, ActiveSessions: 1}, global)
}

func TestEngine_DefaultSession(t *testing.T) {
	e, _ := newTestEngine(t)
	require.True(t, e.ValidateInput(context.Background(), "What is APR?", "").Valid)

	usage, err := e.UsageStats(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.TotalQueries)
}

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (*failingStore) Check(context.Context, string, time.Time) (WindowCounts, error) {
	return WindowCounts{}, errStoreDown
}

func (*failingStore) Record(context.Context, string, time.Time) error { return errStoreDown }

func (*failingStore) Stats(context.Context, string, time.Time) (SessionUsage, error) {
	return SessionUsage{}, errStoreDown
}

func (*failingStore) Global(context.Context, time.Time) (GlobalUsage, error) {
	return GlobalUsage{}, errStoreDown
}

func (*failingStore) Evict(context.Context, time.Time) (int, error) { return 0, errStoreDown }

func TestEngine_StoreErrorsFailOpen(t *testing.T) {
	e := NewEngine(nil, &failingStore{}, nil)
	for i := 0; i < 20; i++ {
		res := e.ValidateInput(context.Background(), "What is a CD?", "s")
		require.True(t, res.Valid)
	}

	_, err := e.UsageStats(context.Background(), "s")
	assert.ErrorIs(t, err, errStoreDown)
}

func TestEngine_AuditAndMetrics(t *testing.T) {
	audit := NewMemoryAuditLogger(10)
	rec := &fakeRecorder{}
	e, _ := newTestEngine(t, WithAuditLogger(audit), WithRecorder(rec))
	ctx := context.Background()

	e.ValidateInput(ctx, "insider trading tips", "s1")
	e.ValidateInput(ctx, "What is a stock?", "s1")
	e.ValidateOutput(ctx, "  ", "What is a stock?")
	e.ValidateOutput(ctx, "You must diversify.", "What is a stock?")

	entries, err := audit.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, DirectionInput, entries[0].Direction)
	assert.Equal(t, ErrCodeProhibitedTopic, entries[0].Reason)
	assert.Equal(t, "prohibited_topic_validator", entries[0].Validator)
	assert.Equal(t, "s1", entries[0].SessionID)
	assert.Equal(t, hashContent("insider trading tips"), entries[0].ContentHash)
	assert.Equal(t, DirectionOutput, entries[1].Direction)
	assert.Equal(t, ErrCodeEmptyResponse, entries[1].Reason)

	assert.Equal(t, []recordedRejection{
		{"input", ErrCodeProhibitedTopic},
		{"output", ErrCodeEmptyResponse},
	}, rec.rejections)
	assert.Len(t, rec.softened, 1)
}

func TestEngine_EvictIdle(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	require.True(t, e.ValidateInput(ctx, "What is a stock?", "old").Valid)
	clock.Advance(50 * time.Minute)
	require.True(t, e.ValidateInput(ctx, "What is a stock?", "new").Valid)
	clock.Advance(20 * time.Minute)

	n, err := e.EvictIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	global, err := e.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, global.TotalSessions)
}

func TestEngine_ConcurrentSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				e.ValidateInput(ctx, "What is a mutual fund?", id)
			}
		}(string(rune('a' + s)))
	}
	wg.Wait()

	global, err := e.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, global.TotalSessions)
	assert.Equal(t, 40, global.TotalQueries)
}

// ============================================================================
// 输出校验
// ============================================================================

func TestEngine_ValidateOutput(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("empty response", func(t *testing.T) {
		res := e.ValidateOutput(ctx, " \n ", "What is a stock?")
		assert.False(t, res.Valid)
		assert.Empty(t, res.Enhanced)
		assert.Equal(t, MsgEmptyResponse, res.Error)
	})

	t.Run("general disclaimer appended", func(t *testing.T) {
		res := e.ValidateOutput(ctx, "A stock is a share of ownership.", "What is a stock?")
		require.True(t, res.Valid)
		assert.True(t, strings.HasPrefix(res.Enhanced, "A stock is a share of ownership.\n\n---\n\n"))
		assert.Contains(t, res.Enhanced, "for educational purposes only")
	})

	t.Run("existing disclaimer respected", func(t *testing.T) {
		resp := "This is for educational purposes. Bonds are loans."
		res := e.ValidateOutput(ctx, resp, "What is a bond?")
		assert.Equal(t, resp, res.Enhanced)
	})

	t.Run("sensitive markers", func(t *testing.T) {
		res := e.ValidateOutput(ctx, "Here is some context.", "I need tax advice and legal advice on estate planning")
		assert.Contains(t, res.Enhanced, "**Tax Disclaimer**")
		assert.Contains(t, res.Enhanced, "**Legal Disclaimer**")
		assert.NotContains(t, res.Enhanced, "**Investment Disclaimer**")
		assert.Contains(t, res.Enhanced, "**General Disclaimer**")
		assert.Equal(t, 1, strings.Count(res.Enhanced, "---"))
	})

	t.Run("investment marker", func(t *testing.T) {
		res := e.ValidateOutput(ctx, "Consider index funds. Not financial advice.", "Give me a specific investment recommendation")
		assert.Contains(t, res.Enhanced, "**Investment Disclaimer**")
		assert.NotContains(t, res.Enhanced, "**General Disclaimer**")
	})
}
