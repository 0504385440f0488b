package finagent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/agent/orchestrator"
	"github.com/BaSui01/finagent/agent/router"
	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/testutil/mocks"
	"github.com/BaSui01/finagent/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type stubRouter struct {
	decision router.Decision
	calls    int
}

func (r *stubRouter) RouteQuery(_ context.Context, query string) router.Decision {
	r.calls++
	d := r.decision
	d.Query = query
	return d
}

type execCall struct {
	ids      []agent.ID
	query    string
	threadID string
	parallel bool
}

type stubExecutor struct {
	mu       sync.Mutex
	response string
	panicVal any
	single   []execCall
	multiple []execCall
}

func (e *stubExecutor) ExecuteSingle(_ context.Context, id agent.ID, query, threadID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panicVal != nil {
		panic(e.panicVal)
	}
	e.single = append(e.single, execCall{ids: []agent.ID{id}, query: query, threadID: threadID})
	return e.response
}

func (e *stubExecutor) ExecuteMultiple(_ context.Context, ids []agent.ID, query, threadID string, parallel bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiple = append(e.multiple, execCall{ids: ids, query: query, threadID: threadID, parallel: parallel})
	return e.response
}

func (e *stubExecutor) AgentInfo() []agent.Info {
	return []agent.Info{
		{ID: agent.FinanceQA, Name: agent.FinanceQA.DisplayName(), ToolCount: 1, Tools: []string{"financial_glossary"}},
		{ID: agent.MarketAnalyst, Name: agent.MarketAnalyst.DisplayName()},
	}
}

type queryRecorder struct {
	rejected []bool
}

func (r *queryRecorder) RecordQuery(rejected bool, _ time.Duration) {
	r.rejected = append(r.rejected, rejected)
}

func singleDecision(id agent.ID) router.Decision {
	return router.Decision{Agents: []agent.ID{id}, Reasoning: "General question.", Source: router.SourceParsed}
}

// =============================================================================
// 🧪 ProcessQuery
// =============================================================================

func TestAssistant_ProcessQuery_Single(t *testing.T) {
	rt := &stubRouter{decision: singleDecision(agent.FinanceQA)}
	exec := &stubExecutor{response: "A stock is a share of ownership in a company."}
	rec := &queryRecorder{}
	a := New(guardrails.NewEngine(nil, nil, nil), rt, exec, zap.NewNop(), WithRecorder(rec))

	reply := a.ProcessQuery(context.Background(), "  What   is a stock?", "t-1")

	assert.False(t, reply.Rejected)
	require.Len(t, exec.single, 1)
	assert.Equal(t, "What is a stock?", exec.single[0].query)
	assert.Equal(t, "t-1", exec.single[0].threadID)
	assert.Empty(t, exec.multiple)

	assert.True(t, strings.HasPrefix(reply.Response, "A stock is a share of ownership in a company."))
	assert.Contains(t, reply.Response, "General Disclaimer")
	assert.Contains(t, reply.Routing, agent.FinanceQA.Label())
	assert.Equal(t, []agent.ID{agent.FinanceQA}, reply.Decision.Agents)
	assert.Equal(t, []bool{false}, rec.rejected)
}

func TestAssistant_ProcessQuery_Multiple(t *testing.T) {
	rt := &stubRouter{decision: router.Decision{
		Agents:    []agent.ID{agent.MarketAnalyst, agent.FinanceQA},
		Reasoning: "Needs market data plus education.",
		Source:    router.SourceParsed,
	}}
	exec := &stubExecutor{response: "Combined answer. This is not financial advice."}
	a := New(guardrails.NewEngine(nil, nil, nil), rt, exec, nil, WithParallel(false))

	reply := a.ProcessQuery(context.Background(), "What's Tesla's stock price and should I buy it?", "t-2")

	require.Len(t, exec.multiple, 1)
	assert.Equal(t, []agent.ID{agent.MarketAnalyst, agent.FinanceQA}, exec.multiple[0].ids)
	assert.False(t, exec.multiple[0].parallel)
	assert.Contains(t, reply.Routing, "Routing to multiple agents:")
	assert.NotContains(t, reply.Response, "General Disclaimer")
}

func TestAssistant_ProcessQuery_RejectedInput(t *testing.T) {
	rt := &stubRouter{decision: singleDecision(agent.FinanceQA)}
	exec := &stubExecutor{response: "unused"}
	rec := &queryRecorder{}
	a := New(guardrails.NewEngine(nil, nil, nil), rt, exec, nil, WithRecorder(rec))

	reply := a.ProcessQuery(context.Background(), "   ", "t-3")

	assert.True(t, reply.Rejected)
	assert.Equal(t, guardrails.MsgEmptyQuery, reply.Response)
	assert.Equal(t, guardrails.ErrCodeEmptyQuery, reply.RejectCode)
	assert.Empty(t, reply.Routing)
	assert.Zero(t, rt.calls)
	assert.Empty(t, exec.single)
	assert.Equal(t, []bool{true}, rec.rejected)
}

func TestAssistant_ProcessQuery_EmptyAgentOutput(t *testing.T) {
	rt := &stubRouter{decision: singleDecision(agent.GoalPlanner)}
	exec := &stubExecutor{response: "   "}
	a := New(guardrails.NewEngine(nil, nil, nil), rt, exec, nil)

	reply := a.ProcessQuery(context.Background(), "How much should I save?", "")

	assert.Equal(t, guardrails.MsgEmptyResponse, reply.Response)
	require.Len(t, exec.single, 1)
	assert.Equal(t, agent.DefaultThreadID, exec.single[0].threadID)
}

func TestAssistant_ProcessQuery_SessionFromContext(t *testing.T) {
	cfg := guardrails.DefaultConfig()
	cfg.MaxQueriesPerMinute = 1
	engine := guardrails.NewEngine(cfg, nil, nil)
	rt := &stubRouter{decision: singleDecision(agent.FinanceQA)}
	exec := &stubExecutor{response: "ok"}
	a := New(engine, rt, exec, nil)

	ctx := types.WithSessionID(context.Background(), "shared-session")
	first := a.ProcessQuery(ctx, "What is a bond?", "thread-a")
	second := a.ProcessQuery(ctx, "What is a bond?", "thread-b")
	assert.False(t, first.Rejected)
	assert.True(t, second.Rejected)
	assert.Equal(t, guardrails.ErrCodeRateLimitMinute, second.RejectCode)

	// 未设置会话时使用线程标识
	third := a.ProcessQuery(context.Background(), "What is a bond?", "thread-c")
	assert.False(t, third.Rejected)

	usage, err := engine.UsageStats(context.Background(), "shared-session")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.TotalQueries)
}

func TestAssistant_ProcessQuery_IntentGate(t *testing.T) {
	intent := mocks.NewMockProvider().WithResponse(
		"Illegal-Content: yes\nGuarantees: no\nEducational: no\nSafe: no\nReasoning: insider information")
	engine := guardrails.NewEngine(nil, nil, nil, guardrails.WithIntentProvider(intent))
	rt := &stubRouter{decision: singleDecision(agent.FinanceQA)}
	exec := &stubExecutor{response: "unused"}

	a := New(engine, rt, exec, nil, WithIntentCheck(true))
	reply := a.ProcessQuery(context.Background(), "Which stock will jump after tomorrow's unannounced merger?", "t")
	assert.True(t, reply.Rejected)
	assert.Equal(t, guardrails.MsgUnsafeIntent, reply.Response)
	assert.Zero(t, rt.calls)

	// 关闭意图检查时不调用模型
	a = New(engine, rt, exec, nil)
	reply = a.ProcessQuery(context.Background(), "What is an index fund?", "t")
	assert.False(t, reply.Rejected)
	assert.Equal(t, 1, intent.CallCount())
}

func TestAssistant_ProcessQuery_RecoversPanic(t *testing.T) {
	rt := &stubRouter{decision: singleDecision(agent.FinanceQA)}
	exec := &stubExecutor{panicVal: "boom"}
	rec := &queryRecorder{}
	a := New(guardrails.NewEngine(nil, nil, nil), rt, exec, nil, WithRecorder(rec))

	reply := a.ProcessQuery(context.Background(), "What is a stock?", "t")
	assert.Equal(t, RoutingErrorOccurred, reply.Routing)
	assert.True(t, strings.HasPrefix(reply.Response, MsgProcessingError))
	assert.NotContains(t, reply.Response, "boom")
	// 道歉语同样经过输出校验
	assert.Contains(t, reply.Response, "General Disclaimer")
	assert.Equal(t, []bool{false}, rec.rejected)
}

func TestAssistant_SystemInfo(t *testing.T) {
	a := New(guardrails.NewEngine(nil, nil, nil), &stubRouter{}, &stubExecutor{}, nil)
	info := a.SystemInfo()
	assert.Contains(t, info, "**"+agent.FinanceQA.DisplayName()+"**")
	assert.Contains(t, info, "- Capabilities: financial_glossary")
	assert.Len(t, a.Agents(), 2)
}

// =============================================================================
// 🧪 端到端：真实路由器、编排器与智能体
// =============================================================================

func scriptedProvider() *mocks.MockProvider {
	return mocks.NewMockProvider().WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		system := ""
		if len(req.Messages) > 0 && req.Messages[0].Role == llm.RoleSystem {
			system = req.Messages[0].Content
		}
		switch {
		case strings.Contains(system, "query routing expert"):
			return mocks.TextResponse("AGENTS: market_analyst, finance_qa\nREASONING: Needs prices and education."), nil
		case strings.Contains(system, "synthesizing information"):
			return mocks.TextResponse("Synthesized: prices are volatile, diversify."), nil
		default:
			return mocks.TextResponse("Agent answer."), nil
		}
	})
}

func TestAssistant_EndToEnd(t *testing.T) {
	provider := scriptedProvider()

	registry, err := agent.NewBuilder(provider).Build()
	require.NoError(t, err)

	orch := orchestrator.New(registry, provider, nil, nil)
	defer orch.Close()

	a := New(guardrails.NewEngine(nil, nil, nil), router.New(provider, nil, nil), orch, nil)
	reply := a.ProcessQuery(context.Background(), "What's Tesla's stock price and should I buy it?", "e2e")

	assert.False(t, reply.Rejected)
	assert.Equal(t, []agent.ID{agent.MarketAnalyst, agent.FinanceQA}, reply.Decision.Agents)
	assert.Equal(t, router.SourceParsed, reply.Decision.Source)
	assert.True(t, strings.HasPrefix(reply.Response, "Synthesized: prices are volatile, diversify."))
	assert.Contains(t, reply.Response, "General Disclaimer")
	// 路由 + 两个智能体 + 综合
	assert.Equal(t, 4, provider.CallCount())
}
