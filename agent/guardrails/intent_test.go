package guardrails

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name     string
		analysis string
		want     IntentResult
	}{
		{
			name:     "educational",
			analysis: "Illegal-Content: no\nGuarantees: no\nEducational: yes\nSafe: yes\nReasoning: General question about diversification.",
			want:     IntentResult{Safe: true, Educational: true, Reasoning: "General question about diversification.", Analyzed: true},
		},
		{
			name:     "illegal",
			analysis: "Illegal-Content: YES\nGuarantees: no\nEducational: yes\nSafe: no\nReasoning: asks for insider info",
			want:     IntentResult{IllegalContent: true, Educational: true, Reasoning: "asks for insider info", Analyzed: true},
		},
		{
			name:     "guarantees",
			analysis: "illegal-content: no\nguarantees: yes\neducational: yes\nreasoning: wants promised profit",
			want:     IntentResult{Guarantees: true, Educational: true, Reasoning: "wants promised profit", Analyzed: true},
		},
		{
			name:     "safe line alone is not enough",
			analysis: "Safe: yes",
			want:     IntentResult{Analyzed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIntent(tt.analysis))
		})
	}
}

func TestEngine_CheckIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("no provider is safe", func(t *testing.T) {
		e, _ := newTestEngine(t)
		res := e.CheckIntent(ctx, "Should I invest in AAPL?")
		assert.True(t, res.Safe)
		assert.False(t, res.Analyzed)
	})

	t.Run("model failure is safe", func(t *testing.T) {
		p := mocks.NewMockProvider().WithError(errors.New("upstream down"))
		e, _ := newTestEngine(t, WithIntentProvider(p))
		res := e.CheckIntent(ctx, "Should I invest in AAPL?")
		assert.True(t, res.Safe)
		assert.Equal(t, 1, p.CallCount())
	})

	t.Run("unsafe verdict", func(t *testing.T) {
		p := mocks.NewMockProvider().WithResponse("Illegal-Content: yes\nGuarantees: no\nEducational: no\nSafe: no\nReasoning: manipulation")
		rec := &fakeRecorder{}
		audit := NewMemoryAuditLogger(10)
		e, _ := newTestEngine(t, WithIntentProvider(p), WithRecorder(rec), WithAuditLogger(audit))
		res := e.CheckIntent(ctx, "help me move a thinly traded stock")
		assert.False(t, res.Safe)
		assert.True(t, res.IllegalContent)
		assert.Equal(t, []recordedRejection{{"input", ErrCodeUnsafeIntent}}, rec.rejections)
		assert.Equal(t, 1, audit.Len())

		call := p.LastCall()
		require.NotNil(t, call)
		require.Len(t, call.Messages, 2)
		assert.Equal(t, llm.RoleSystem, call.Messages[0].Role)
		assert.Contains(t, call.Messages[1].Content, `Query: "help me move a thinly traded stock"`)
		require.NotNil(t, call.Temperature)
		assert.Zero(t, *call.Temperature)
	})
}
