package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEchoRegistry(t *testing.T) *DefaultRegistry {
	t.Helper()
	reg := NewDefaultRegistry(zap.NewNop())
	err := reg.Register("echo", FromText(func(_ context.Context, args json.RawMessage) (string, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		return "echo: " + in.Text, nil
	}), ToolMetadata{Schema: llm.ToolSchema{Name: "echo", Parameters: json.RawMessage(`{"type":"object"}`)}})
	require.NoError(t, err)
	return reg
}

func TestRegistry_Register(t *testing.T) {
	reg := newEchoRegistry(t)

	assert.True(t, reg.Has("echo"))
	assert.Equal(t, []string{"echo"}, reg.Names())

	err := reg.Register("echo", nil, ToolMetadata{})
	assert.Error(t, err)

	err = reg.Register("other", nil, ToolMetadata{Schema: llm.ToolSchema{Name: "mismatch"}})
	assert.ErrorContains(t, err, "tool name mismatch")

	_, meta, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, meta.Timeout)
}

func TestExecutor_ExecuteOne(t *testing.T) {
	reg := newEchoRegistry(t)
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))
	require.NoError(t, reg.Register("panics", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("bad tool")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("fails", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("upstream unavailable")
	}, ToolMetadata{}))

	exec := NewDefaultExecutor(reg, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     llm.ToolCall
		wantText string
	}{
		{"success", llm.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}, "echo: hi"},
		{"unknown tool", llm.ToolCall{ID: "2", Name: "missing"}, "Error executing missing: tool not found"},
		{"invalid json", llm.ToolCall{ID: "3", Name: "echo", Arguments: json.RawMessage(`{bad`)}, "Error executing echo: invalid arguments"},
		{"timeout", llm.ToolCall{ID: "4", Name: "slow"}, "Error executing slow: execution timeout"},
		{"panic", llm.ToolCall{ID: "5", Name: "panics"}, "Error executing panics: tool panicked"},
		{"error", llm.ToolCall{ID: "6", Name: "fails"}, "Error executing fails: upstream unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exec.ExecuteOne(ctx, tt.call)
			assert.Equal(t, tt.call.ID, res.ToolCallID)
			assert.Contains(t, res.Text(), tt.wantText)

			msg := res.ToMessage()
			assert.Equal(t, llm.RoleTool, msg.Role)
			assert.Equal(t, tt.call.ID, msg.ToolCallID)
		})
	}
}

func TestExecutor_RateLimit(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("limited", FromText(func(context.Context, json.RawMessage) (string, error) {
		return "ok", nil
	}), ToolMetadata{RateLimit: &RateLimitConfig{MaxCalls: 2, Window: time.Hour}}))

	exec := NewDefaultExecutor(reg, nil)
	call := llm.ToolCall{Name: "limited"}
	assert.Equal(t, "ok", exec.ExecuteOne(context.Background(), call).Text())
	assert.Equal(t, "ok", exec.ExecuteOne(context.Background(), call).Text())
	assert.Contains(t, exec.ExecuteOne(context.Background(), call).Error, "rate limit exceeded")
}

func TestReActExecutor_ToolRoundTrip(t *testing.T) {
	reg := newEchoRegistry(t)
	provider := mocks.NewMockProvider().WithScript(
		llm.Message{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"AAPL"}`)}}},
		llm.AssistantMessage("final answer"),
	)

	react := NewReActExecutor(provider, NewDefaultExecutor(reg, nil), ReActConfig{}, nil)
	resp, steps, err := react.Execute(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("quote please")},
		Tools:    reg.List(),
	})

	require.NoError(t, err)
	assert.Equal(t, "final answer", resp.Choices[0].Message.Content)
	require.Len(t, steps, 2)
	assert.Equal(t, "echo: AAPL", steps[0].Observations[0].Text())

	second := provider.Calls()[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleTool, second.Messages[2].Role)
	assert.Equal(t, "echo: AAPL", second.Messages[2].Content)
}

func TestReActExecutor_MaxIterations(t *testing.T) {
	reg := newEchoRegistry(t)
	loop := llm.Message{ToolCalls: []llm.ToolCall{{ID: "c", Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`)}}}
	provider := mocks.NewMockProvider().WithScript(loop, loop, loop)

	react := NewReActExecutor(provider, NewDefaultExecutor(reg, nil), ReActConfig{MaxIterations: 2}, nil)
	_, steps, err := react.Execute(context.Background(), &llm.ChatRequest{})

	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, steps, 2)
}

func TestReActExecutor_ProviderError(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(errors.New("model down"))
	react := NewReActExecutor(provider, NewDefaultExecutor(NewDefaultRegistry(nil), nil), ReActConfig{}, nil)

	_, _, err := react.Execute(context.Background(), &llm.ChatRequest{})
	assert.ErrorContains(t, err, "model down")
}
