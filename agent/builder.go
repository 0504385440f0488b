package agent

import (
	"errors"
	"fmt"

	"github.com/BaSui01/finagent/agent/memory"
	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/llm/tools"
	"github.com/BaSui01/finagent/tools/finance"
	"github.com/BaSui01/finagent/tools/market"
	"go.uber.org/zap"
)

// Builder 以流式调用构建五类智能体及其工具集
type Builder struct {
	provider llm.Provider
	market   market.DataSource
	memory   memory.Store
	config   Config
	logger   *zap.Logger

	errors []error
}

// NewBuilder 创建构建器
func NewBuilder(provider llm.Provider) *Builder {
	b := &Builder{config: DefaultConfig()}
	if provider == nil {
		b.errors = append(b.errors, ErrProviderNotSet)
	}
	b.provider = provider
	return b
}

// WithMarketData 设置行情数据源，未设置时行情和组合智能体不挂载工具
func (b *Builder) WithMarketData(source market.DataSource) *Builder {
	b.market = source
	return b
}

// WithMemory 设置共享的对话记忆
func (b *Builder) WithMemory(store memory.Store) *Builder {
	b.memory = store
	return b
}

// WithConfig 设置模型参数
func (b *Builder) WithConfig(config Config) *Builder {
	if err := config.Validate(); err != nil {
		b.errors = append(b.errors, err)
		return b
	}
	b.config = config
	return b
}

// WithLogger 设置日志器
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger == nil {
		b.errors = append(b.errors, fmt.Errorf("logger cannot be nil"))
		return b
	}
	b.logger = logger
	return b
}

// Build 构建注册表
func (b *Builder) Build() (*Registry, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("build agents: %w", errors.Join(b.errors...))
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := b.memory
	if store == nil {
		store = memory.NewInMemoryStore(memory.DefaultConfig(), logger)
	}

	var toolset *market.Toolset
	if b.market != nil {
		toolset = market.NewToolset(b.market)
	} else {
		logger.Warn("no market data source configured, market tools disabled")
	}

	agents := make([]Agent, 0, len(allIDs))
	for _, id := range allIDs {
		reg := tools.NewDefaultRegistry(logger)
		if err := registerTools(id, reg, toolset); err != nil {
			return nil, fmt.Errorf("register tools for %s: %w", id, err)
		}
		a, err := NewFinanceAgent(id, b.provider, reg, store, b.config, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("agent initialized",
			zap.Stringer("agent_id", id),
			zap.Int("tools", len(reg.List())),
		)
		agents = append(agents, a)
	}
	return NewRegistry(agents...)
}

func registerTools(id ID, reg tools.ToolRegistry, toolset *market.Toolset) error {
	switch id {
	case FinanceQA:
		return finance.RegisterEducationTools(reg)
	case PortfolioAnalyzer:
		if toolset == nil {
			return nil
		}
		return toolset.RegisterPortfolioTools(reg)
	case MarketAnalyst:
		if toolset == nil {
			return nil
		}
		return toolset.RegisterMarketTools(reg)
	case GoalPlanner:
		return finance.RegisterPlanningTools(reg)
	case TaxEducator:
		return finance.RegisterTaxTools(reg)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAgent, uint8(id))
	}
}
