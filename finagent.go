// Package finagent 是多智能体金融助手的入口。
//
// 一次查询依次经过护栏输入校验、可选的意图检查、路由、单或多智能体执行、
// 护栏输出校验，最终文本一定经过输出校验。
//
//	a := finagent.New(engine, rt, orch, logger, finagent.WithIntentCheck(true))
//	reply := a.ProcessQuery(ctx, "What is a Roth IRA?", "thread-1")
package finagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/agent/router"
	"github.com/BaSui01/finagent/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/finagent"

// RoutingErrorOccurred 处理过程崩溃时的路由说明
const RoutingErrorOccurred = "Error occurred"

// MsgProcessingError 处理过程崩溃时的固定回复，不包含内部错误信息
const MsgProcessingError = "I apologize, but I encountered an error processing your question.\n\n" +
	"Please try rephrasing your question or contact support if the issue persists."

// ====== 依赖接口 ======

// Guard 护栏，*guardrails.Engine 满足该接口
type Guard interface {
	ValidateInput(ctx context.Context, query, sessionID string) guardrails.InputResult
	ValidateOutput(ctx context.Context, response, originalQuery string) guardrails.OutputResult
	CheckIntent(ctx context.Context, query string) guardrails.IntentResult
}

// QueryRouter 路由器，*router.Router 满足该接口
type QueryRouter interface {
	RouteQuery(ctx context.Context, query string) router.Decision
}

// Executor 智能体执行器，*orchestrator.Orchestrator 满足该接口
type Executor interface {
	ExecuteSingle(ctx context.Context, id agent.ID, query, threadID string) string
	ExecuteMultiple(ctx context.Context, ids []agent.ID, query, threadID string, parallel bool) string
	AgentInfo() []agent.Info
}

// Recorder 记录查询结果
type Recorder interface {
	RecordQuery(rejected bool, duration time.Duration)
}

// Reply 是 ProcessQuery 的结果
type Reply struct {
	Response string          `json:"response"`
	Routing  string          `json:"routing"`
	Decision router.Decision `json:"decision"`
	// Rejected 为 true 时 Response 是护栏提示语，未进行路由
	Rejected   bool   `json:"rejected"`
	RejectCode string `json:"reject_code,omitempty"`
}

// Option 配置 Assistant
type Option func(*Assistant)

// WithIntentCheck 路由前调用模型做意图检查
func WithIntentCheck(enabled bool) Option {
	return func(a *Assistant) { a.intentCheck = enabled }
}

// WithParallel 多智能体时是否并行执行，默认并行
func WithParallel(parallel bool) Option {
	return func(a *Assistant) { a.parallel = parallel }
}

// WithRecorder 设置指标记录器
func WithRecorder(rec Recorder) Option {
	return func(a *Assistant) { a.recorder = rec }
}

// Assistant 组合护栏、路由器和执行器
type Assistant struct {
	guard       Guard
	router      QueryRouter
	executor    Executor
	intentCheck bool
	parallel    bool
	recorder    Recorder
	tracer      trace.Tracer
	logger      *zap.Logger
}

// New 创建 Assistant
func New(guard Guard, rt QueryRouter, executor Executor, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{
		guard:    guard,
		router:   rt,
		executor: executor,
		parallel: true,
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "assistant")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessQuery 处理一次用户查询，总是返回文本
// 会话标识取自 types.SessionID(ctx)，未设置时与线程标识相同
func (a *Assistant) ProcessQuery(ctx context.Context, query, threadID string) (reply Reply) {
	start := time.Now()
	if threadID == "" {
		threadID = agent.DefaultThreadID
	}
	sessionID, ok := types.SessionID(ctx)
	if !ok {
		sessionID = threadID
	}

	ctx, span := a.tracer.Start(ctx, "finagent.process_query",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.Int("query.length", len(query)),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("query processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			reply = Reply{
				Response: a.apology(ctx, query),
				Routing:  RoutingErrorOccurred,
			}
		}
		if a.recorder != nil {
			a.recorder.RecordQuery(reply.Rejected, time.Since(start))
		}
		span.SetAttributes(attribute.Bool("query.rejected", reply.Rejected))
	}()

	a.logger.Info("processing query", zap.String("thread_id", threadID), zap.String("query", truncate(query, 100)))

	in := a.guard.ValidateInput(ctx, query, sessionID)
	if !in.Valid {
		return Reply{Response: in.Error, Rejected: true, RejectCode: in.Code}
	}

	if a.intentCheck {
		if ir := a.guard.CheckIntent(ctx, in.Sanitized); !ir.Safe {
			return Reply{Response: guardrails.MsgUnsafeIntent, Rejected: true, RejectCode: guardrails.ErrCodeUnsafeIntent}
		}
	}

	decision := a.router.RouteQuery(ctx, in.Sanitized)
	routing := router.ExplainRouting(decision)
	span.SetAttributes(attribute.Int("routing.agents", len(decision.Agents)))

	var response string
	if len(decision.Agents) == 1 {
		response = a.executor.ExecuteSingle(ctx, decision.Agents[0], in.Sanitized, threadID)
	} else {
		response = a.executor.ExecuteMultiple(ctx, decision.Agents, in.Sanitized, threadID, a.parallel)
	}

	out := a.guard.ValidateOutput(ctx, response, in.Sanitized)
	if !out.Valid {
		response = out.Error
	} else {
		response = out.Enhanced
	}

	a.logger.Info("response generated", zap.Int("chars", len(response)), zap.Duration("elapsed", time.Since(start)))
	return Reply{Response: response, Routing: routing, Decision: decision}
}

// apology 让固定道歉语同样经过输出校验；输出校验本身崩溃时直接返回原文
func (a *Assistant) apology(ctx context.Context, query string) (response string) {
	response = MsgProcessingError
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("output validation panicked", zap.Any("panic", r))
			response = MsgProcessingError
		}
	}()
	if out := a.guard.ValidateOutput(ctx, MsgProcessingError, query); out.Valid {
		response = out.Enhanced
	}
	return response
}

// SystemInfo 返回可用智能体及其工具的说明
func (a *Assistant) SystemInfo() string {
	var b strings.Builder
	b.WriteString("## AI Finance Assistant - System Information\n\n")
	b.WriteString("### Available Agents:\n\n")
	for _, info := range a.executor.AgentInfo() {
		fmt.Fprintf(&b, "**%s**\n", info.Name)
		fmt.Fprintf(&b, "- Tools: %d\n", info.ToolCount)
		if len(info.Tools) > 0 {
			fmt.Fprintf(&b, "- Capabilities: %s\n", strings.Join(info.Tools, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Agents 返回智能体目录
func (a *Assistant) Agents() []agent.Info {
	return a.executor.AgentInfo()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
