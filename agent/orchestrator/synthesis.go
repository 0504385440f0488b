package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result 是单个智能体的执行结果，失败以 Err 表示
type Result struct {
	Agent    agent.ID      `json:"agent"`
	Text     string        `json:"text,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK 是否成功
func (r Result) OK() bool { return r.Err == nil }

// Output 返回面向用户的文本，失败时为带前缀的错误说明
func (r Result) Output() string {
	switch {
	case errors.Is(r.Err, ErrAgentUnavailable):
		return fmt.Sprintf("Error: Agent '%s' not available.", r.Agent)
	case r.Err != nil:
		return fmt.Sprintf("Error from %s: %s", r.Agent.DisplayName(), r.Err)
	default:
		return r.Text
	}
}

const synthesisSystemPrompt = "You are an expert at synthesizing information from multiple sources into clear, comprehensive responses."

// FormatResponses 以 "=== 名称 ===" 分块列出各智能体输出
func FormatResponses(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("=== %s ===\n%s", r.Agent.DisplayName(), r.Output()))
	}
	return strings.Join(blocks, "\n\n")
}

// Concatenate 综合失败时的拼接结果
func Concatenate(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", r.Agent.DisplayName(), r.Output()))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// SynthesisPrompt 构造综合提示词
func SynthesisPrompt(query string, results []Result) string {
	return fmt.Sprintf(`You are synthesizing responses from multiple specialized financial AI agents.

Original User Query: %q

Agent Responses:
%s

Instructions:
1. Combine all agent responses into ONE comprehensive, well-organized answer
2. Eliminate redundancy while preserving all unique information
3. Organize information logically (e.g., data first, then analysis, then recommendations)
4. Maintain the educational tone
5. Keep all disclaimers about not being financial advice
6. If an agent reported an error, answer from the remaining responses without mentioning the failure
7. Use clear headings and bullet points for readability
8. Make it feel like a single, cohesive response (not separate agent outputs)

Synthesized Response:`, query, FormatResponses(results))
}

// Synthesize 用 LLM 合并多个结果；模型失败或输出为空时回退到拼接，fallback 为 true
func (o *Orchestrator) Synthesize(ctx context.Context, query string, results []Result) (text string, fallback bool) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.synthesize", trace.WithAttributes(attribute.Int("agents", len(results))))
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("synthesis panicked", zap.Any("panic", r))
			text, fallback = Concatenate(results), true
		}
		span.SetAttributes(attribute.Bool("synthesis.fallback", fallback))
		span.End()
		if o.recorder != nil {
			o.recorder.RecordSynthesis(len(results), fallback)
		}
	}()

	o.logger.Info("synthesizing responses", zap.Int("agents", len(results)))

	if o.config.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.SynthesisTimeout)
		defer cancel()
	}

	opts := []llm.InvokeOption{llm.WithTemperature(o.config.SynthesisTemperature)}
	if o.config.SynthesisModel != "" {
		opts = append(opts, llm.WithModel(o.config.SynthesisModel))
	}
	if o.config.SynthesisMaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(o.config.SynthesisMaxTokens))
	}

	out, err := llm.Invoke(ctx, o.provider, []llm.Message{
		llm.SystemMessage(synthesisSystemPrompt),
		llm.UserMessage(SynthesisPrompt(query, results)),
	}, opts...)
	if err != nil {
		o.logger.Error("synthesis failed, concatenating responses", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return Concatenate(results), true
	}
	if out == "" {
		o.logger.Warn("synthesis returned empty output, concatenating responses")
		return Concatenate(results), true
	}
	return out, false
}
