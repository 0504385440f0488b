package router

import (
	"strings"

	"github.com/BaSui01/finagent/agent"
)

// Source 标记路由结果的来源
type Source string

const (
	// SourceParsed 从 AGENTS: 行解析得到
	SourceParsed Source = "parsed"
	// SourceFirstLine 没有 AGENTS: 行，按第一行非空文本解析
	SourceFirstLine Source = "first_line"
	// SourceDefaultUnparseable 输出中没有任何合法标识
	SourceDefaultUnparseable Source = "default_unparseable"
	// SourceDefaultError 模型调用失败
	SourceDefaultError Source = "default_error"
)

// IsDefault 是否为兜底路由
func (s Source) IsDefault() bool {
	return s == SourceDefaultUnparseable || s == SourceDefaultError
}

const (
	agentsPrefix    = "agents:"
	reasoningPrefix = "reasoning:"

	// ReasoningUnparseable 输出无法解析时的说明
	ReasoningUnparseable = "Defaulting to general financial education."
	// ReasoningError 模型调用失败时的说明
	ReasoningError = "Error in routing, defaulting to general financial education."
)

// Parsed 是对模型输出的解析结果
type Parsed struct {
	Agents    []agent.ID
	Reasoning string
	Source    Source
}

// Parse 把模型输出视为不可信文本解析
// 优先使用 AGENTS: 行，否则取第一行非空文本；只保留五类智能体标识，
// 保持顺序并去重；没有合法标识时回退到 finance_qa。
func Parse(output string) Parsed {
	var (
		agentsLine, reasoning, firstLine string
		hasAgents                        bool
	)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if firstLine == "" {
			firstLine = line
		}
		if !hasAgents {
			if value, ok := labelValue(line, agentsPrefix); ok {
				agentsLine = value
				hasAgents = true
				continue
			}
		}
		if reasoning == "" {
			if value, ok := labelValue(line, reasoningPrefix); ok {
				reasoning = value
			}
		}
	}

	source := SourceParsed
	if !hasAgents {
		agentsLine = firstLine
		source = SourceFirstLine
	}

	ids := parseAgentList(agentsLine)
	if len(ids) == 0 {
		return Parsed{
			Agents:    []agent.ID{agent.DefaultID},
			Reasoning: ReasoningUnparseable,
			Source:    SourceDefaultUnparseable,
		}
	}
	return Parsed{Agents: ids, Reasoning: reasoning, Source: source}
}

// markdownDecoration 是模型常加在标签前后的列表符号与强调符号
const markdownDecoration = " \t*-_#>`"

// labelValue 识别形如 "AGENTS: x"、"**AGENTS:** x"、"- AGENTS: x" 的行
// 标签前只允许出现 markdown 修饰符，返回标签后去掉修饰的内容。
func labelValue(line, label string) (string, bool) {
	rest := strings.TrimLeft(line, markdownDecoration)
	if len(rest) < len(label) || !strings.EqualFold(rest[:len(label)], label) {
		return "", false
	}
	return strings.Trim(rest[len(label):], markdownDecoration), true
}

func parseAgentList(line string) []agent.ID {
	seen := make(map[agent.ID]bool, 5)
	var ids []agent.ID
	for _, candidate := range strings.Split(line, ",") {
		// 模型偶尔会给标识加上引号或反引号
		candidate = strings.Trim(strings.TrimSpace(candidate), "\"'`*.")
		id, err := agent.ParseID(candidate)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
