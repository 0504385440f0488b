package agent

import (
	"fmt"
	"strings"
)

// ID 标识五类专业智能体之一，取值集合封闭
type ID uint8

const (
	// FinanceQA 通用金融知识问答
	FinanceQA ID = iota + 1
	// PortfolioAnalyzer 投资组合分析
	PortfolioAnalyzer
	// MarketAnalyst 行情与公司数据
	MarketAnalyst
	// GoalPlanner 目标与退休规划
	GoalPlanner
	// TaxEducator 税务知识
	TaxEducator
)

// DefaultID 路由无法判断时使用的智能体
const DefaultID = FinanceQA

var allIDs = []ID{FinanceQA, PortfolioAnalyzer, MarketAnalyst, GoalPlanner, TaxEducator}

var idNames = map[ID]string{
	FinanceQA:         "finance_qa",
	PortfolioAnalyzer: "portfolio_analyzer",
	MarketAnalyst:     "market_analyst",
	GoalPlanner:       "goal_planner",
	TaxEducator:       "tax_educator",
}

// AllIDs 按固定顺序返回全部智能体标识
func AllIDs() []ID {
	out := make([]ID, len(allIDs))
	copy(out, allIDs)
	return out
}

// Valid 判断是否为已定义的标识
func (id ID) Valid() bool {
	_, ok := idNames[id]
	return ok
}

func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return fmt.Sprintf("agent(%d)", uint8(id))
}

// ParseID 解析标识名，忽略大小写和首尾空白
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, id := range allIDs {
		if idNames[id] == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAgent, s)
}

// MarshalText 实现 encoding.TextMarshaler
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, uint8(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DisplayName 带图标的展示名
func (id ID) DisplayName() string {
	if r, ok := catalog[id]; ok {
		return r.displayName
	}
	return id.String()
}

// Label 路由说明中使用的简短名称
func (id ID) Label() string {
	if r, ok := catalog[id]; ok {
		return r.label
	}
	return id.String()
}

// Description 职责描述，路由提示词会逐条列出
func (id ID) Description() string {
	if r, ok := catalog[id]; ok {
		return r.description
	}
	return ""
}

// SystemPrompt 智能体的系统提示词
func (id ID) SystemPrompt() string {
	if r, ok := catalog[id]; ok {
		return r.systemPrompt
	}
	return ""
}
