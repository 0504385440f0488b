package guardrails

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/finagent/llm"
	"go.uber.org/zap"
)

// Recorder 接收护栏事件计数，internal/metrics.Collector 实现了该接口
type Recorder interface {
	RecordGuardrailRejection(direction, reason string)
	RecordOutputSoftened(pattern string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGuardrailRejection(string, string) {}
func (nopRecorder) RecordOutputSoftened(string)             {}

// Option 配置 Engine
type Option func(*Engine)

// WithIntentProvider 设置意图检查使用的模型
func WithIntentProvider(p llm.Provider) Option {
	return func(e *Engine) { e.intent = NewIntentAnalyzer(p) }
}

// WithAuditLogger 设置审计日志
func WithAuditLogger(l AuditLogger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine 金融问答护栏引擎
//
// 输入校验严格按以下顺序短路：空白、长度、频率限制、规范化、禁止话题、恶意模式。
// 只有全部通过的查询才会计入会话配额。
type Engine struct {
	config   *Config
	store    SessionStore
	pre      *ValidatorChain
	post     *ValidatorChain
	output   *OutputValidator
	intent   *IntentAnalyzer
	audit    AuditLogger
	recorder Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewEngine 创建护栏引擎
// config 为 nil 时使用默认配置，store 为 nil 时使用 MemoryStore
func NewEngine(config *Config, store SessionStore, logger *zap.Logger, opts ...Option) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if store == nil {
		store = NewMemoryStore(&StoreConfig{Retention: time.Hour, ActiveWindow: config.ActiveWindow})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:   config,
		store:    store,
		intent:   NewIntentAnalyzer(nil),
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   logger.With(zap.String("component", "guardrails")),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pre = NewValidatorChain(
		EmptyValidator{},
		NewLengthValidator(config.MaxInputLength),
	)
	e.post = NewValidatorChain(
		NewProhibitedTopicValidator(config.ProhibitedTopics),
		NewMaliciousPatternValidator(config.SpecialCharThreshold),
	)
	e.output = NewOutputValidator(
		NewDisclaimers(config.SensitiveTopics),
		NewPrescriptiveFilter(func(pattern string) {
			e.logger.Info("softening prescriptive language", zap.String("pattern", pattern))
			e.recorder.RecordOutputSoftened(pattern)
		}),
	)
	return e
}

// Config 返回引擎配置
func (e *Engine) Config() *Config {
	return e.config
}

// ValidateInput 校验并规范化用户查询
func (e *Engine) ValidateInput(ctx context.Context, query, sessionID string) InputResult {
	if sessionID == "" {
		sessionID = "default"
	}
	e.logger.Debug("validating input", zap.String("session_id", sessionID))

	if res, err := e.pre.Validate(ctx, query); err != nil || !res.Valid {
		if err != nil {
			e.logger.Warn("input validation aborted", zap.String("session_id", sessionID), zap.Error(err))
		}
		return e.reject(ctx, sessionID, query, res)
	}

	now := e.now()
	counts, err := e.store.Check(ctx, sessionID, now)
	if err != nil {
		// 存储不可用时放行
		e.logger.Warn("session store check failed, allowing query", zap.String("session_id", sessionID), zap.Error(err))
	} else if verr := e.rateLimitError(counts); verr != nil {
		res := NewValidationResult()
		res.AddError(*verr)
		return e.reject(ctx, sessionID, query, res)
	}

	sanitized := Sanitize(query)
	if sanitized == "" {
		res := NewValidationResult()
		res.AddError(ValidationError{Code: ErrCodeEmptyQuery, Message: MsgEmptyQuery, Severity: SeverityLow})
		return e.reject(ctx, sessionID, query, res)
	}

	if res, err := e.post.Validate(ctx, sanitized); err != nil || !res.Valid {
		if err != nil {
			e.logger.Warn("input validation aborted", zap.String("session_id", sessionID), zap.Error(err))
		}
		return e.reject(ctx, sessionID, query, res)
	}

	if err := e.store.Record(ctx, sessionID, now); err != nil {
		e.logger.Warn("failed to record query", zap.String("session_id", sessionID), zap.Error(err))
	}

	e.logger.Debug("input validation passed", zap.String("session_id", sessionID))
	return InputResult{Valid: true, Sanitized: sanitized}
}

func (e *Engine) rateLimitError(c WindowCounts) *ValidationError {
	if c.LastMinute >= e.config.MaxQueriesPerMinute {
		return &ValidationError{
			Code: ErrCodeRateLimitMinute,
			Message: fmt.Sprintf("⚠️ Too many requests. Please wait a moment before asking another question. (Limit: %d per minute)",
				e.config.MaxQueriesPerMinute),
			Severity: SeverityMedium,
		}
	}
	if c.LastHour >= e.config.MaxQueriesPerHour {
		return &ValidationError{
			Code: ErrCodeRateLimitHour,
			Message: fmt.Sprintf("⚠️ You've reached the hourly limit of %d questions. Please try again later.",
				e.config.MaxQueriesPerHour),
			Severity: SeverityMedium,
		}
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, sessionID, content string, res *ValidationResult) InputResult {
	verr := res.FirstError()
	if verr == nil {
		verr = &ValidationError{Code: ErrCodeValidationFailed, Message: MsgEmptyQuery}
	}
	validator, _ := res.Metadata["failed_validator"].(string)

	e.logger.Warn("input rejected",
		zap.String("session_id", sessionID),
		zap.String("reason", verr.Code),
		zap.String("validator", validator))
	e.recorder.RecordGuardrailRejection(string(DirectionInput), verr.Code)
	e.writeAudit(ctx, AuditEntry{
		SessionID: sessionID,
		Direction: DirectionInput,
		Reason:    verr.Code,
		Validator: validator,
	}, content)

	return InputResult{Valid: false, Error: verr.Message, Code: verr.Code}
}

func (e *Engine) writeAudit(ctx context.Context, entry AuditEntry, content string) {
	if e.audit == nil {
		return
	}
	entry.Timestamp = e.now()
	entry.ContentHash = hashContent(content)
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log write failed", zap.Error(err))
	}
}

// ValidateOutput 校验 Agent 回复并追加免责声明、软化指令性措辞
func (e *Engine) ValidateOutput(ctx context.Context, response, originalQuery string) OutputResult {
	res := e.output.Process(ctx, response, originalQuery)
	if !res.Valid {
		e.logger.Warn("empty response generated")
		e.recorder.RecordGuardrailRejection(string(DirectionOutput), ErrCodeEmptyResponse)
		e.writeAudit(ctx, AuditEntry{Direction: DirectionOutput, Reason: ErrCodeEmptyResponse}, originalQuery)
	}
	return res
}

// CheckIntent 使用模型分析查询意图；未配置模型或调用失败时视为安全
func (e *Engine) CheckIntent(ctx context.Context, query string) IntentResult {
	res, err := e.intent.Analyze(ctx, query)
	if err != nil {
		e.logger.Error("intent check failed, treating query as safe", zap.Error(err))
		return res
	}
	if !res.Safe {
		e.logger.Warn("query blocked by intent check",
			zap.Bool("illegal_content", res.IllegalContent),
			zap.Bool("guarantees", res.Guarantees),
			zap.String("reasoning", res.Reasoning))
		e.recorder.RecordGuardrailRejection(string(DirectionInput), ErrCodeUnsafeIntent)
		e.writeAudit(ctx, AuditEntry{Direction: DirectionInput, Reason: ErrCodeUnsafeIntent, Validator: "intent_analyzer"}, query)
	}
	return res
}

// UsageStats 返回单个会话的用量
func (e *Engine) UsageStats(ctx context.Context, sessionID string) (SessionUsage, error) {
	if sessionID == "" {
		sessionID = "default"
	}
	return e.store.Stats(ctx, sessionID, e.now())
}

// GlobalStats 返回全局用量
func (e *Engine) GlobalStats(ctx context.Context) (GlobalUsage, error) {
	return e.store.Global(ctx, e.now())
}

// EvictIdle 立即淘汰闲置会话
func (e *Engine) EvictIdle(ctx context.Context) (int, error) {
	return e.store.Evict(ctx, e.now())
}

// StartEviction 按 interval 周期淘汰闲置会话，直到 ctx 结束
func (e *Engine) StartEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.EvictIdle(ctx)
				if err != nil {
					e.logger.Warn("session eviction failed", zap.Error(err))
					continue
				}
				if n > 0 {
					e.logger.Info("evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}
