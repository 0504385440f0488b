package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/finagent"
	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/agent/router"
	"github.com/BaSui01/finagent/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 查询 Handler
// =============================================================================

// Assistant 处理查询的助手，*finagent.Assistant 满足该接口
type Assistant interface {
	ProcessQuery(ctx context.Context, query, threadID string) finagent.Reply
	Agents() []agent.Info
}

// QueryRequest POST /api/v1/query 请求体
type QueryRequest struct {
	Query string `json:"query"`
	// ThreadID 对话线程，为空时生成新线程
	ThreadID string `json:"thread_id,omitempty"`
	// SessionID 限流会话，为空时与 ThreadID 相同
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse 查询结果
type QueryResponse struct {
	Response string        `json:"response"`
	Routing  string        `json:"routing"`
	Agents   []agent.ID    `json:"agents"`
	Source   router.Source `json:"source,omitempty"`
	ThreadID string        `json:"thread_id"`
	Duration string        `json:"duration"`
}

// AgentInfo 智能体目录条目
type AgentInfo struct {
	ID          agent.ID `json:"id"`
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	ToolCount   int      `json:"tool_count"`
	Tools       []string `json:"tools"`
}

// QueryHandler 查询与智能体目录处理器
type QueryHandler struct {
	assistant Assistant
	logger    *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(assistant Assistant, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		assistant: assistant,
		logger:    logger.With(zap.String("handler", "query")),
	}
}

// HandleQuery 处理 POST /api/v1/query
// 护栏拒绝时返回错误：限流为 429 RATE_LIMITED，其余为 400 GUARDRAILS_VIOLATED，message 为提示语
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	ctx := r.Context()
	if req.SessionID != "" {
		ctx = types.WithSessionID(ctx, req.SessionID)
	}

	start := time.Now()
	reply := h.assistant.ProcessQuery(ctx, req.Query, req.ThreadID)

	if reply.Rejected {
		WriteError(w, r, rejectionError(reply), h.logger)
		return
	}

	WriteSuccess(w, r, QueryResponse{
		Response: reply.Response,
		Routing:  reply.Routing,
		Agents:   reply.Decision.Agents,
		Source:   reply.Decision.Source,
		ThreadID: req.ThreadID,
		Duration: time.Since(start).String(),
	})
}

func rejectionError(reply finagent.Reply) *types.Error {
	switch reply.RejectCode {
	case guardrails.ErrCodeRateLimitMinute, guardrails.ErrCodeRateLimitHour:
		return types.NewRateLimitError(reply.Response)
	default:
		return types.NewError(types.ErrGuardrailsViolated, reply.Response).WithHTTPStatus(http.StatusBadRequest)
	}
}

// HandleAgents 处理 GET /api/v1/agents
func (h *QueryHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	infos := h.assistant.Agents()
	out := make([]AgentInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, AgentInfo{
			ID:          info.ID,
			Name:        info.Name,
			Label:       info.ID.Label(),
			Description: info.Description,
			ToolCount:   info.ToolCount,
			Tools:       info.Tools,
		})
	}
	WriteSuccess(w, r, out)
}
