package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ====== 原始输入校验 ======

// EmptyValidator 拒绝空白查询
type EmptyValidator struct{}

// Name 返回验证器名称
func (EmptyValidator) Name() string { return "empty_validator" }

// Priority 返回优先级
func (EmptyValidator) Priority() int { return 10 }

// Validate 执行验证
func (EmptyValidator) Validate(_ context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()
	if strings.TrimSpace(content) == "" {
		result.AddError(ValidationError{
			Code:     ErrCodeEmptyQuery,
			Message:  MsgEmptyQuery,
			Severity: SeverityLow,
		})
	}
	return result, nil
}

// LengthValidator 长度验证器，按 rune 计数
type LengthValidator struct {
	maxLength int
}

// NewLengthValidator 创建长度验证器
func NewLengthValidator(maxLength int) *LengthValidator {
	if maxLength <= 0 {
		maxLength = DefaultConfig().MaxInputLength
	}
	return &LengthValidator{maxLength: maxLength}
}

// Name 返回验证器名称
func (v *LengthValidator) Name() string { return "length_validator" }

// Priority 返回优先级
func (v *LengthValidator) Priority() int { return 20 }

// MaxLength 返回配置的最大长度
func (v *LengthValidator) MaxLength() int { return v.maxLength }

// Validate 执行长度验证
func (v *LengthValidator) Validate(_ context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()

	n := utf8.RuneCountInString(content)
	if n <= v.maxLength {
		return result, nil
	}
	result.Metadata["original_length"] = n
	result.Metadata["max_length"] = v.maxLength
	result.AddError(ValidationError{
		Code: ErrCodeMaxLengthExceeded,
		Message: fmt.Sprintf("⚠️ Your question is too long. Please limit to %d characters (current: %d).",
			v.maxLength, n),
		Severity: SeverityMedium,
	})
	return result, nil
}

// ====== 规范化后内容校验 ======

// ProhibitedTopicValidator 禁止话题验证器
// 不区分大小写的子串匹配，命中第一个即拒绝
type ProhibitedTopicValidator struct {
	topics []string
}

// NewProhibitedTopicValidator 创建禁止话题验证器
func NewProhibitedTopicValidator(topics []string) *ProhibitedTopicValidator {
	lowered := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &ProhibitedTopicValidator{topics: lowered}
}

// Name 返回验证器名称
func (v *ProhibitedTopicValidator) Name() string { return "prohibited_topic_validator" }

// Priority 返回优先级
func (v *ProhibitedTopicValidator) Priority() int { return 50 }

// Validate 执行验证
func (v *ProhibitedTopicValidator) Validate(_ context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()
	lower := strings.ToLower(content)
	for _, topic := range v.topics {
		if strings.Contains(lower, topic) {
			result.Metadata["topic"] = topic
			result.AddError(ValidationError{
				Code:     ErrCodeProhibitedTopic,
				Message:  prohibitedMessage(topic),
				Severity: SeverityHigh,
			})
			break
		}
	}
	return result, nil
}

func prohibitedMessage(topic string) string {
	return fmt.Sprintf(`⚠️ I cannot assist with questions about %s.

This topic may involve:
- Illegal activities
- Unethical financial practices
- High-risk schemes

I'm designed to provide educational financial information and promote responsible investing practices.

Please ask me about:
- General financial concepts
- Investment education
- Retirement planning
- Portfolio diversification
- Tax-advantaged accounts`, topic)
}

var (
	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(union\s+select|drop\s+table|delete\s+from|insert\s+into)`),
		regexp.MustCompile(`(--|;|/\*|\*/)`),
	}
	scriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)onerror\s*=`),
		regexp.MustCompile(`(?i)onclick\s*=`),
	}
)

// MaliciousPatternValidator 检测 SQL、脚本注入和过多特殊字符
type MaliciousPatternValidator struct {
	threshold float64
}

// NewMaliciousPatternValidator 创建恶意模式验证器
func NewMaliciousPatternValidator(threshold float64) *MaliciousPatternValidator {
	if threshold <= 0 {
		threshold = DefaultConfig().SpecialCharThreshold
	}
	return &MaliciousPatternValidator{threshold: threshold}
}

// Name 返回验证器名称
func (v *MaliciousPatternValidator) Name() string { return "malicious_pattern_validator" }

// Priority 返回优先级
func (v *MaliciousPatternValidator) Priority() int { return 60 }

// Validate 执行验证
func (v *MaliciousPatternValidator) Validate(_ context.Context, content string) (*ValidationResult, error) {
	result := NewValidationResult()

	for _, p := range sqlPatterns {
		if p.MatchString(content) {
			result.AddError(ValidationError{Code: ErrCodeSQLInjection, Message: MsgSQLInjection, Severity: SeverityCritical})
			return result, nil
		}
	}
	for _, p := range scriptPatterns {
		if p.MatchString(content) {
			result.AddError(ValidationError{Code: ErrCodeScriptInjection, Message: MsgScript, Severity: SeverityCritical})
			return result, nil
		}
	}

	if ratio := SpecialCharRatio(content); ratio > v.threshold {
		result.Metadata["special_char_ratio"] = ratio
		result.AddError(ValidationError{Code: ErrCodeSpecialChars, Message: MsgSpecialChars, Severity: SeverityMedium})
	}
	return result, nil
}

// SpecialCharRatio 返回不属于字母、数字、空白和 .,?!-()$% 的字符占比
func SpecialCharRatio(s string) float64 {
	total, special := 0, 0
	for _, r := range s {
		total++
		if !isPlainRune(r) {
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

func isPlainRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\r', r == '\f', r == '\v':
		return true
	}
	return strings.ContainsRune(".,?!-()$%", r)
}
