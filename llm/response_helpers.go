package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoChoices 表示模型没有返回任何候选。
var ErrNoChoices = errors.New("empty choices in ChatResponse (model returned no choices)")

// FirstChoice safely returns the first choice from a ChatResponse.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, ErrNoChoices
	}
	return resp.Choices[0], nil
}

// Invoke 以消息列表调用模型并返回首个候选的文本内容。
// 路由、综合、意图检查共用这一最小调用契约。
func Invoke(ctx context.Context, p Provider, messages []Message, opts ...InvokeOption) (string, error) {
	if p == nil {
		return "", &Error{Code: ErrProviderUnavailable, Message: "no llm provider configured"}
	}

	req := &ChatRequest{Messages: messages}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := p.Completion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.Name(), err)
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

// InvokeOption 调整单次调用的请求参数。
type InvokeOption func(*ChatRequest)

// WithModel 覆盖模型名。
func WithModel(model string) InvokeOption {
	return func(r *ChatRequest) { r.Model = model }
}

// WithTemperature 覆盖采样温度。
func WithTemperature(t float32) InvokeOption {
	return func(r *ChatRequest) { r.Temperature = &t }
}

// WithMaxTokens 限制输出长度。
func WithMaxTokens(n int) InvokeOption {
	return func(r *ChatRequest) { r.MaxTokens = n }
}
