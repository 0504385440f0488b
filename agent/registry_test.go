package agent

import (
	"context"
	"testing"

	"github.com/BaSui01/finagent/testutil/mocks"
	"github.com/BaSui01/finagent/tools/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAgent struct{ id ID }

func (s stubAgent) ID() ID { return s.id }
func (s stubAgent) Invoke(context.Context, string, string) (string, error) {
	return s.id.String(), nil
}
func (s stubAgent) Info() Info { return Info{ID: s.id, Name: s.id.DisplayName()} }

type nopSource struct{}

func (nopSource) Quote(context.Context, string) (*market.Quote, error)     { return &market.Quote{}, nil }
func (nopSource) Company(context.Context, string) (*market.Company, error) { return &market.Company{}, nil }

func TestNewRegistry(t *testing.T) {
	all := []Agent{stubAgent{FinanceQA}, stubAgent{PortfolioAnalyzer}, stubAgent{MarketAnalyst}, stubAgent{GoalPlanner}, stubAgent{TaxEducator}}

	r, err := NewRegistry(all...)
	require.NoError(t, err)
	for _, id := range AllIDs() {
		a, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, id, a.ID())
	}
	_, ok := r.Get(ID(0))
	assert.False(t, ok)

	infos := r.Infos()
	require.Len(t, infos, 5)
	assert.Equal(t, TaxEducator, infos[4].ID)

	_, err = NewRegistry(all[:4]...)
	assert.ErrorIs(t, err, ErrAgentNotRegistered)

	_, err = NewRegistry(append(all, stubAgent{FinanceQA})...)
	assert.Error(t, err)

	_, err = NewRegistry(append(all, stubAgent{ID(9)})...)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestBuilder_Build(t *testing.T) {
	reg, err := NewBuilder(mocks.NewMockProvider()).
		WithMarketData(nopSource{}).
		WithLogger(zap.NewNop()).
		Build()
	require.NoError(t, err)

	tools := map[ID][]string{}
	for _, info := range reg.Infos() {
		tools[info.ID] = info.Tools
	}
	assert.Contains(t, tools[FinanceQA], "search_financial_term")
	assert.Contains(t, tools[PortfolioAnalyzer], "analyze_portfolio_allocation")
	assert.Contains(t, tools[MarketAnalyst], "get_stock_quote")
	assert.Contains(t, tools[GoalPlanner], "calculate_savings_goal")
	assert.Contains(t, tools[TaxEducator], "explain_capital_gains_tax")
	assert.NotContains(t, tools[FinanceQA], "get_stock_quote")
}

func TestBuilder_WithoutMarketData(t *testing.T) {
	reg, err := NewBuilder(mocks.NewMockProvider()).Build()
	require.NoError(t, err)

	a, ok := reg.Get(MarketAnalyst)
	require.True(t, ok)
	assert.Zero(t, a.Info().ToolCount)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := NewBuilder(nil).Build()
	assert.ErrorIs(t, err, ErrProviderNotSet)

	bad := DefaultConfig()
	bad.MaxTokens = -1
	_, err = NewBuilder(mocks.NewMockProvider()).WithConfig(bad).WithLogger(nil).Build()
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
