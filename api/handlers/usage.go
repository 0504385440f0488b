package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/types"
	"go.uber.org/zap"
)

// UsageSource 用量统计来源，*guardrails.Engine 满足该接口
type UsageSource interface {
	UsageStats(ctx context.Context, sessionID string) (guardrails.SessionUsage, error)
	GlobalStats(ctx context.Context) (guardrails.GlobalUsage, error)
}

// UsageHandler 用量统计处理器
type UsageHandler struct {
	source UsageSource
	logger *zap.Logger
}

// NewUsageHandler 创建用量统计处理器
func NewUsageHandler(source UsageSource, logger *zap.Logger) *UsageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageHandler{source: source, logger: logger.With(zap.String("handler", "usage"))}
}

// HandleSession 处理 GET /api/v1/usage?session_id=
func (h *UsageHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		WriteError(w, r, types.NewInvalidRequestError("session_id is required"), h.logger)
		return
	}

	usage, err := h.source.UsageStats(r.Context(), sessionID)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "usage statistics unavailable").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, r, usage)
}

// HandleGlobal 处理 GET /api/v1/usage/global
func (h *UsageHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	usage, err := h.source.GlobalStats(r.Context())
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "usage statistics unavailable").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, r, usage)
}
