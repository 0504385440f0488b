package guardrails

import (
	"context"
	"fmt"
	"time"
)

// Validator 验证器接口
// 用于校验已规范化的查询文本
type Validator interface {
	// Validate 执行验证，返回验证结果
	Validate(ctx context.Context, content string) (*ValidationResult, error)
	// Name 返回验证器名称
	Name() string
	// Priority 返回优先级（数字越小优先级越高）
	Priority() int
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// NewValidationResult 创建一个有效的验证结果
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Metadata: make(map[string]any),
	}
}

// AddError 添加验证错误并将结果标记为无效
func (r *ValidationResult) AddError(err ValidationError) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// Merge 合并另一个验证结果
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	if !other.Valid {
		r.Valid = false
	}
	r.Errors = append(r.Errors, other.Errors...)
	for k, v := range other.Metadata {
		r.Metadata[k] = v
	}
}

// FirstError 返回第一个错误，没有错误时返回 nil
func (r *ValidationResult) FirstError() *ValidationError {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}

// ValidationError 验证错误，Message 直接面向用户
type ValidationError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // critical, high, medium, low
}

// Severity 常量定义
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// 拒绝原因代码，同时用作指标标签和审计原因
const (
	ErrCodeEmptyQuery        = "empty_query"
	ErrCodeMaxLengthExceeded = "max_length_exceeded"
	ErrCodeRateLimitMinute   = "rate_limit_minute"
	ErrCodeRateLimitHour     = "rate_limit_hour"
	ErrCodeProhibitedTopic   = "prohibited_topic"
	ErrCodeSQLInjection      = "sql_injection"
	ErrCodeScriptInjection   = "script_injection"
	ErrCodeSpecialChars      = "special_characters"
	ErrCodeEmptyResponse     = "empty_response"
	ErrCodeUnsafeIntent      = "unsafe_intent"
	ErrCodeValidationFailed  = "validation_failed"
)

// 面向用户的固定提示语
const (
	MsgEmptyQuery    = "⚠️ Please enter a valid question."
	MsgSQLInjection  = "⚠️ Your query contains characters that cannot be processed. Please rephrase."
	MsgScript        = "⚠️ Your query contains invalid formatting. Please use plain text."
	MsgSpecialChars  = "⚠️ Your query contains too many special characters. Please simplify."
	MsgEmptyResponse = "I apologize, but I couldn't generate a proper response. Please try rephrasing your question."
	MsgUnsafeIntent  = "⚠️ I can only help with educational questions about legitimate financial topics. Please rephrase your question."

	MsgValidationUnavailable = "⚠️ Your query could not be checked right now. Please try again."
)

// InputResult 是 ValidateInput 的结果
// Valid 为 true 时 Sanitized 为规范化后的查询，否则 Error 为提示语
type InputResult struct {
	Valid     bool   `json:"valid"`
	Sanitized string `json:"sanitized,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// OutputResult 是 ValidateOutput 的结果
type OutputResult struct {
	Valid    bool   `json:"valid"`
	Enhanced string `json:"enhanced,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IntentResult 是意图分析结果
type IntentResult struct {
	Safe           bool   `json:"safe"`
	IllegalContent bool   `json:"illegal_content"`
	Guarantees     bool   `json:"guarantees"`
	Educational    bool   `json:"educational"`
	Reasoning      string `json:"reasoning,omitempty"`
	// Analyzed 为 false 表示未调用模型（未配置或调用失败）
	Analyzed bool `json:"analyzed"`
}

// SessionUsage 单个会话的用量统计
type SessionUsage struct {
	SessionID         string `json:"session_id"`
	TotalQueries      int    `json:"total_queries"`
	QueriesLastHour   int    `json:"queries_last_hour"`
	QueriesLastMinute int    `json:"queries_last_minute"`
}

// GlobalUsage 全局用量统计
type GlobalUsage struct {
	TotalSessions  int `json:"total_sessions"`
	TotalQueries   int `json:"total_queries"`
	ActiveSessions int `json:"active_sessions"`
}

// Config 护栏配置
type Config struct {
	MaxInputLength       int           `yaml:"max_input_length" json:"max_input_length"`
	MaxQueriesPerMinute  int           `yaml:"max_queries_per_minute" json:"max_queries_per_minute"`
	MaxQueriesPerHour    int           `yaml:"max_queries_per_hour" json:"max_queries_per_hour"`
	SpecialCharThreshold float64       `yaml:"special_char_threshold" json:"special_char_threshold"`
	ActiveWindow         time.Duration `yaml:"active_window" json:"active_window"`
	ProhibitedTopics     []string      `yaml:"prohibited_topics" json:"prohibited_topics"`
	SensitiveTopics      []string      `yaml:"sensitive_topics" json:"sensitive_topics"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxInputLength:       2000,
		MaxQueriesPerMinute:  10,
		MaxQueriesPerHour:    100,
		SpecialCharThreshold: 0.3,
		ActiveWindow:         5 * time.Minute,
		ProhibitedTopics:     append([]string(nil), defaultProhibitedTopics...),
		SensitiveTopics:      append([]string(nil), defaultSensitiveTopics...),
	}
}

// Validate 检查配置
func (c *Config) Validate() error {
	if c.MaxInputLength <= 0 {
		return fmt.Errorf("max_input_length must be positive")
	}
	if c.MaxQueriesPerMinute <= 0 || c.MaxQueriesPerHour <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.SpecialCharThreshold <= 0 || c.SpecialCharThreshold > 1 {
		return fmt.Errorf("special_char_threshold must be in (0, 1]")
	}
	return nil
}

var defaultProhibitedTopics = []string{
	"crypto trading bots",
	"pump and dump",
	"insider trading",
	"market manipulation",
	"guaranteed returns",
	"risk-free investment",
	"get rich quick",
	"penny stock tips",
	"forex scam",
	"ponzi scheme",
	"pyramid scheme",
}

var defaultSensitiveTopics = []string{
	"tax advice",
	"legal advice",
	"specific investment recommendation",
	"medical expenses",
	"bankruptcy",
	"divorce finances",
	"estate planning",
}
