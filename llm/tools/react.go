package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/finagent/llm"
	"go.uber.org/zap"
)

// ErrMaxIterations 表示 ReAct 循环达到最大迭代次数仍未得到最终回答。
var ErrMaxIterations = errors.New("react: max iterations reached")

// ReActConfig defines ReAct loop configuration.
type ReActConfig struct {
	MaxIterations int // Maximum iterations (prevents infinite loops)
}

// ReActExecutor implements the ReAct (Reasoning and Acting) loop.
// Automatically handles "LLM -> Tool -> LLM" multi-turn conversations.
type ReActExecutor struct {
	provider     llm.Provider
	toolExecutor ToolExecutor
	logger       *zap.Logger
	config       ReActConfig
}

// NewReActExecutor creates a ReAct executor.
func NewReActExecutor(provider llm.Provider, toolExecutor ToolExecutor, config ReActConfig, logger *zap.Logger) *ReActExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 6
	}
	return &ReActExecutor{
		provider:     provider,
		toolExecutor: toolExecutor,
		logger:       logger.With(zap.String("component", "react")),
		config:       config,
	}
}

// ReActStep represents one step in the ReAct loop (Thought → Action → Observation).
type ReActStep struct {
	StepNumber   int            `json:"step_number"`
	Thought      string         `json:"thought,omitempty"`
	Actions      []llm.ToolCall `json:"actions,omitempty"`
	Observations []ToolResult   `json:"observations,omitempty"`
	TokensUsed   int            `json:"tokens_used,omitempty"`
}

// Execute runs the ReAct loop, returning final response and all steps.
func (r *ReActExecutor) Execute(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, []ReActStep, error) {
	steps := make([]ReActStep, 0, 2)
	messages := append([]llm.Message{}, req.Messages...)

	for i := 0; i < r.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, steps, err
		}

		callReq := *req
		callReq.Messages = messages
		resp, err := r.provider.Completion(ctx, &callReq)
		if err != nil {
			return nil, steps, fmt.Errorf("LLM call failed at iteration %d: %w", i+1, err)
		}

		choice, err := llm.FirstChoice(resp)
		if err != nil {
			return resp, steps, err
		}

		step := ReActStep{
			StepNumber: i + 1,
			Thought:    choice.Message.Content,
			TokensUsed: resp.Usage.TotalTokens,
		}

		toolCalls := choice.Message.ToolCalls
		if len(toolCalls) == 0 {
			steps = append(steps, step)
			r.logger.Debug("react completed", zap.Int("iterations", i+1), zap.String("finish_reason", choice.FinishReason))
			return resp, steps, nil
		}

		r.logger.Debug("executing tools", zap.Int("count", len(toolCalls)))
		step.Actions = toolCalls
		step.Observations = r.toolExecutor.Execute(ctx, toolCalls)

		messages = append(messages, choice.Message)
		for _, result := range step.Observations {
			messages = append(messages, result.ToMessage())
		}
		steps = append(steps, step)
	}

	r.logger.Warn("react max iterations reached", zap.Int("max", r.config.MaxIterations))
	return nil, steps, fmt.Errorf("%w (%d)", ErrMaxIterations, r.config.MaxIterations)
}
