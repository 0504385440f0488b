package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/finagent/llm"
)

const intentSystemPrompt = "You are a safety analyzer for educational financial AI. Your role is to block ONLY truly harmful content (illegal activities, guarantees, scams) while allowing ALL legitimate educational questions about investments, even if they mention specific stocks or ask 'should I invest'."

const intentPromptTemplate = `Analyze this financial query for safety and intent:

Query: "%s"

CRITICAL GUIDELINES:
- Educational questions about ANY investment (including specific stocks) ARE SAFE
- Questions asking "should I invest..." can be answered with educational risk/diversification analysis
- The AI will ALWAYS provide disclaimers and educational context, never give definitive commands

Only mark as UNSAFE (Safe: no) if the query explicitly:
1. Requests GUARANTEED returns or PROMISES of profit (e.g., "guarantee I'll make money")
2. Involves ILLEGAL activities (insider trading, market manipulation, pump & dump schemes)
3. Involves SCAMS (pyramid schemes, Ponzi schemes, forex scams)
4. Requests NON-PUBLIC or insider information

Questions that ARE SAFE (mark Safe: yes):
- "Should I invest all my money in [stock]?" - Educational (teaches diversification)
- "Should I invest in [stock]?" - Educational (teaches risk analysis)
- "What do you think about [stock]?" - Educational market analysis
- "Is [stock] a good investment?" - Educational risk/reward discussion
- "How much should I invest in [stock]?" - Educational portfolio allocation
- "Can you recommend a stock?" - Educational discussion of investment criteria
- ANY question about specific investments for learning purposes

Determine:
1. Does query involve ILLEGAL activity (insider trading, manipulation, scams)? (yes/no)
2. Does query request GUARANTEED returns or risk-free profit? (yes/no)
3. Is this a legitimate educational question about investing? (yes/no)

Respond in this exact format:
Illegal-Content: [yes/no]
Guarantees: [yes/no]
Educational: [yes/no]
Safe: [yes if Educational=yes AND Illegal-Content=no AND Guarantees=no]
Reasoning: [brief explanation]`

// IntentAnalyzer 使用语言模型判断查询意图
type IntentAnalyzer struct {
	provider llm.Provider
}

// NewIntentAnalyzer 创建意图分析器，provider 为 nil 时总是放行
func NewIntentAnalyzer(provider llm.Provider) *IntentAnalyzer {
	return &IntentAnalyzer{provider: provider}
}

// Analyze 返回意图分析结果；未配置模型时视为安全
// 模型调用失败时返回安全结果和错误，由调用方决定是否记录
func (a *IntentAnalyzer) Analyze(ctx context.Context, query string) (IntentResult, error) {
	if a == nil || a.provider == nil {
		return IntentResult{Safe: true}, nil
	}

	content, err := llm.Invoke(ctx, a.provider, []llm.Message{
		llm.SystemMessage(intentSystemPrompt),
		llm.UserMessage(fmt.Sprintf(intentPromptTemplate, query)),
	}, llm.WithTemperature(0))
	if err != nil {
		return IntentResult{Safe: true}, fmt.Errorf("intent analysis: %w", err)
	}
	return ParseIntent(content), nil
}

// ParseIntent 解析模型返回的意图分析文本
// 仅当 Educational 为 yes 且没有违法内容和收益保证时判定为安全
func ParseIntent(analysis string) IntentResult {
	lower := strings.ToLower(analysis)
	res := IntentResult{
		IllegalContent: strings.Contains(lower, "illegal-content: yes"),
		Guarantees:     strings.Contains(lower, "guarantees: yes"),
		Educational:    strings.Contains(lower, "educational: yes"),
		Analyzed:       true,
	}
	res.Safe = res.Educational && !res.IllegalContent && !res.Guarantees

	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= len("reasoning:") && strings.EqualFold(line[:len("reasoning:")], "reasoning:") {
			res.Reasoning = strings.TrimSpace(line[len("reasoning:"):])
			break
		}
	}
	return res
}
