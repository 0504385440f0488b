package guardrails

import (
	"context"
	"regexp"
	"strings"
)

// Filter 过滤器接口
// 用于转换输出内容
type Filter interface {
	// Filter 执行过滤，返回过滤后的内容
	Filter(ctx context.Context, content string) (string, error)
	// Name 返回过滤器名称
	Name() string
}

// ====== 免责声明 ======

const disclaimerSeparator = "\n\n---\n\n"

const (
	taxDisclaimer        = "📋 **Tax Disclaimer**: Tax laws are complex and vary by location and situation. This is educational information only. Consult a certified tax professional or CPA for tax advice specific to your situation."
	legalDisclaimer      = "⚖️ **Legal Disclaimer**: This is not legal advice. Consult a licensed attorney for legal matters."
	investmentDisclaimer = "📈 **Investment Disclaimer**: This is educational information, not investment advice. All investments carry risk. Consult a licensed financial advisor before making investment decisions."
	generalDisclaimer    = "⚠️ **General Disclaimer**: This information is for educational purposes only and does not constitute financial, investment, tax, or legal advice. Always consult qualified professionals before making financial decisions."
)

// Disclaimers 根据原始查询中的敏感标记生成免责声明
type Disclaimers struct {
	sensitive []string
}

// NewDisclaimers 创建免责声明生成器
func NewDisclaimers(sensitiveTopics []string) *Disclaimers {
	lowered := make([]string, 0, len(sensitiveTopics))
	for _, t := range sensitiveTopics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &Disclaimers{sensitive: lowered}
}

// For 返回应附加到回复的免责声明列表
func (d *Disclaimers) For(response, query string) []string {
	lowerQuery := strings.ToLower(query)
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, marker := range d.sensitive {
		if !strings.Contains(lowerQuery, marker) {
			continue
		}
		switch {
		case strings.Contains(marker, "tax"):
			add(taxDisclaimer)
		case strings.Contains(marker, "legal"):
			add(legalDisclaimer)
		case strings.Contains(marker, "investment"):
			add(investmentDisclaimer)
		}
	}

	lowerResp := strings.ToLower(response)
	if !strings.Contains(lowerResp, "not financial advice") && !strings.Contains(lowerResp, "educational purposes") {
		add(generalDisclaimer)
	}
	return out
}

// Apply 将免责声明追加到回复之后
func (d *Disclaimers) Apply(response, query string) string {
	list := d.For(response, query)
	if len(list) == 0 {
		return response
	}
	return response + disclaimerSeparator + strings.Join(list, "\n\n")
}

// ====== 指令性措辞软化 ======

type replacement struct {
	pattern *regexp.Regexp
	with    string
}

var prescriptiveReplacements = []replacement{
	{regexp.MustCompile(`(?i)\byou should (definitely|absolutely|certainly|immediately)\b`), "you might consider"},
	{regexp.MustCompile(`(?i)\byou must\b`), "you may want to"},
	{regexp.MustCompile(`(?i)\bI recommend that you\b`), "one option to consider is"},
	{regexp.MustCompile(`(?i)\bguaranteed (returns|profit|gains)\b`), "potential returns"},
	{regexp.MustCompile(`(?i)\brisk-free\b`), "lower-risk"},
	{regexp.MustCompile(`(?i)\bcan't lose\b`), "historically stable"},
}

// PrescriptiveFilter 把过于绝对的建议措辞替换为教育性表述
type PrescriptiveFilter struct {
	onReplace func(pattern string)
}

// NewPrescriptiveFilter 创建措辞过滤器，onReplace 可为 nil
func NewPrescriptiveFilter(onReplace func(pattern string)) *PrescriptiveFilter {
	return &PrescriptiveFilter{onReplace: onReplace}
}

// Name 返回过滤器名称
func (f *PrescriptiveFilter) Name() string { return "prescriptive_filter" }

// Filter 执行替换，所有出现位置都会被替换
func (f *PrescriptiveFilter) Filter(_ context.Context, content string) (string, error) {
	for _, r := range prescriptiveReplacements {
		if !r.pattern.MatchString(content) {
			continue
		}
		if f.onReplace != nil {
			f.onReplace(r.pattern.String())
		}
		content = r.pattern.ReplaceAllLiteralString(content, r.with)
	}
	return content, nil
}

// ====== 输出验证 ======

// OutputValidator 对 Agent 回复执行空值检查、免责声明追加与过滤
type OutputValidator struct {
	disclaimers *Disclaimers
	filters     []Filter
}

// NewOutputValidator 创建输出验证器
func NewOutputValidator(disclaimers *Disclaimers, filters ...Filter) *OutputValidator {
	if disclaimers == nil {
		disclaimers = NewDisclaimers(defaultSensitiveTopics)
	}
	return &OutputValidator{disclaimers: disclaimers, filters: filters}
}

// Process 返回增强后的回复；空回复返回无效结果
func (v *OutputValidator) Process(ctx context.Context, response, query string) OutputResult {
	if strings.TrimSpace(response) == "" {
		return OutputResult{Valid: false, Error: MsgEmptyResponse}
	}

	enhanced := v.disclaimers.Apply(response, query)
	for _, f := range v.filters {
		out, err := f.Filter(ctx, enhanced)
		if err != nil {
			// 过滤器失败时保留上一步结果
			continue
		}
		enhanced = out
	}
	return OutputResult{Valid: true, Enhanced: enhanced}
}
