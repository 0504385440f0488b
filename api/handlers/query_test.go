package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/finagent"
	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/agent/router"
	"github.com/BaSui01/finagent/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 QueryHandler 测试
// =============================================================================

type stubAssistant struct {
	reply     finagent.Reply
	query     string
	threadID  string
	sessionID string
}

func (s *stubAssistant) ProcessQuery(ctx context.Context, query, threadID string) finagent.Reply {
	s.query = query
	s.threadID = threadID
	s.sessionID, _ = types.SessionID(ctx)
	return s.reply
}

func (s *stubAssistant) Agents() []agent.Info {
	return []agent.Info{
		{ID: agent.TaxEducator, Name: agent.TaxEducator.DisplayName(), Description: agent.TaxEducator.Description(), ToolCount: 1, Tools: []string{"calculate_capital_gains"}},
	}
}

func postQuery(h *QueryHandler, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleQuery(w, r)
	return w
}

func TestQueryHandler_Success(t *testing.T) {
	a := &stubAssistant{reply: finagent.Reply{
		Response: "A Roth IRA is funded with after-tax dollars.",
		Routing:  "Routing to: **Tax Educator**",
		Decision: router.Decision{Agents: []agent.ID{agent.TaxEducator}, Source: router.SourceParsed},
	}}
	h := NewQueryHandler(a, nil)

	w := postQuery(h, `{"query":"What is a Roth IRA?","thread_id":"t-1","session_id":"s-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "What is a Roth IRA?", a.query)
	assert.Equal(t, "t-1", a.threadID)
	assert.Equal(t, "s-1", a.sessionID)

	var body struct {
		Success bool          `json:"success"`
		Data    QueryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "A Roth IRA is funded with after-tax dollars.", body.Data.Response)
	assert.Equal(t, []agent.ID{agent.TaxEducator}, body.Data.Agents)
	assert.Equal(t, router.SourceParsed, body.Data.Source)
	assert.Equal(t, "t-1", body.Data.ThreadID)
}

func TestQueryHandler_GeneratesThreadID(t *testing.T) {
	a := &stubAssistant{reply: finagent.Reply{Response: "ok", Decision: router.Decision{Agents: []agent.ID{agent.FinanceQA}}}}
	h := NewQueryHandler(a, nil)

	w := postQuery(h, `{"query":"What is a bond?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := uuid.Parse(a.threadID)
	assert.NoError(t, err)
	assert.Empty(t, a.sessionID)
}

func TestQueryHandler_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		reply      finagent.Reply
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "rate limited",
			reply:      finagent.Reply{Response: "⚠️ Too many requests.", Rejected: true, RejectCode: guardrails.ErrCodeRateLimitMinute},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   types.ErrRateLimited,
		},
		{
			name:       "hourly limit",
			reply:      finagent.Reply{Response: "⚠️ hourly limit", Rejected: true, RejectCode: guardrails.ErrCodeRateLimitHour},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   types.ErrRateLimited,
		},
		{
			name:       "prohibited topic",
			reply:      finagent.Reply{Response: "⚠️ I cannot provide advice on insider trading.", Rejected: true, RejectCode: guardrails.ErrCodeProhibitedTopic},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrGuardrailsViolated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewQueryHandler(&stubAssistant{reply: tt.reply}, nil)
			w := postQuery(h, `{"query":"anything"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Equal(t, tt.reply.Response, resp.Error.Message)
		})
	}
}

func TestQueryHandler_BadRequests(t *testing.T) {
	h := NewQueryHandler(&stubAssistant{}, nil)

	w := postQuery(h, `{"question":"wrong field"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"x"}`))
	r.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	h.HandleQuery(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.HandleQuery(w, httptest.NewRequest(http.MethodGet, "/api/v1/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestQueryHandler_Agents(t *testing.T) {
	h := NewQueryHandler(&stubAssistant{}, nil)

	w := httptest.NewRecorder()
	h.HandleAgents(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []AgentInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, agent.TaxEducator, body.Data[0].ID)
	assert.Equal(t, agent.TaxEducator.Label(), body.Data[0].Label)
	assert.Equal(t, []string{"calculate_capital_gains"}, body.Data[0].Tools)
}

// =============================================================================
// 🧪 UsageHandler 测试
// =============================================================================

func TestUsageHandler(t *testing.T) {
	engine := guardrails.NewEngine(nil, nil, nil)
	for i := 0; i < 3; i++ {
		require.True(t, engine.ValidateInput(context.Background(), "What is a stock?", "s-1").Valid)
	}
	require.True(t, engine.ValidateInput(context.Background(), "What is a bond?", "s-2").Valid)

	h := NewUsageHandler(engine, nil)

	w := httptest.NewRecorder()
	h.HandleSession(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage?session_id=s-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var session struct {
		Data guardrails.SessionUsage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&session))
	assert.Equal(t, guardrails.SessionUsage{SessionID: "s-1", TotalQueries: 3, QueriesLastHour: 3, QueriesLastMinute: 3}, session.Data)

	w = httptest.NewRecorder()
	h.HandleGlobal(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage/global", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var global struct {
		Data guardrails.GlobalUsage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&global))
	assert.Equal(t, guardrails.GlobalUsage{TotalSessions: 2, TotalQueries: 4, ActiveSessions: 2}, global.Data)
}

type failingUsage struct{}

func (failingUsage) UsageStats(context.Context, string) (guardrails.SessionUsage, error) {
	return guardrails.SessionUsage{}, errors.New("redis down")
}

func (failingUsage) GlobalStats(context.Context) (guardrails.GlobalUsage, error) {
	return guardrails.GlobalUsage{}, errors.New("redis down")
}

func TestUsageHandler_Errors(t *testing.T) {
	h := NewUsageHandler(failingUsage{}, nil)

	w := httptest.NewRecorder()
	h.HandleSession(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.HandleSession(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage?session_id=s", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.HandleGlobal(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage/global", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
