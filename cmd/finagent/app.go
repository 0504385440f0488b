package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/finagent"
	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/agent/guardrails"
	"github.com/BaSui01/finagent/agent/memory"
	"github.com/BaSui01/finagent/agent/orchestrator"
	"github.com/BaSui01/finagent/agent/router"
	"github.com/BaSui01/finagent/config"
	"github.com/BaSui01/finagent/internal/cache"
	"github.com/BaSui01/finagent/internal/database"
	"github.com/BaSui01/finagent/internal/metrics"
	"github.com/BaSui01/finagent/internal/telemetry"
	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/llm/circuitbreaker"
	"github.com/BaSui01/finagent/llm/providers/openai"
	"github.com/BaSui01/finagent/tools/market"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App 持有一次运行所需的全部组件，serve 与 ask 命令共用
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	telemetry *telemetry.Providers
	cache     *cache.Manager
	pool      *database.PoolManager

	engine       *guardrails.Engine
	orchestrator *orchestrator.Orchestrator
	assistant    *finagent.Assistant

	cancel context.CancelFunc
}

// NewApp 按配置装配护栏、路由、编排与助手
// reg 为 nil 时指标注册到 prometheus 默认 Registry
func NewApp(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (_ *App, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{cfg: cfg, logger: logger, cancel: cancel}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	// 1. 遥测与指标
	app.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		err = nil
	}
	app.collector = metrics.NewCollector("finagent", reg, logger)

	// 2. 共享 Redis
	if cfg.UsesRedis() {
		cc := cache.DefaultConfig()
		cc.Addr = cfg.Redis.Addr
		cc.Password = cfg.Redis.Password
		cc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			cc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			cc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		if app.cache, err = cache.NewManager(cc, logger); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	// 3. 审计日志
	audit, err := app.openAudit()
	if err != nil {
		return nil, err
	}

	// 4. 语言模型
	provider := app.newProvider()

	// 5. 行情数据与对话记忆
	marketOpts := []market.Option{market.WithCacheObserver(app.collector)}
	if app.cache != nil {
		marketOpts = append(marketOpts, market.WithSharedCache(app.cache))
	}
	marketClient := market.NewClient(market.Config{
		APIKey:   cfg.MarketData.APIKey,
		BaseURL:  cfg.MarketData.BaseURL,
		Timeout:  cfg.MarketData.Timeout,
		CacheTTL: cfg.MarketData.CacheTTL,
		Retries:  cfg.MarketData.Retries,
	}, logger, marketOpts...)

	memCfg := memory.Config{
		MaxTurns:   cfg.Memory.MaxTurns,
		MaxThreads: cfg.Memory.MaxThreads,
		ThreadTTL:  cfg.Memory.ThreadTTL,
	}
	var store memory.Store
	if cfg.Memory.Backend == "redis" {
		store = memory.NewRedisStore(app.cache.Client(), memCfg, logger)
	} else {
		store = memory.NewInMemoryStore(memCfg, logger)
	}

	// 6. 智能体、路由、编排
	builder := agent.NewBuilder(provider).
		WithMemory(store).
		WithLogger(logger).
		WithConfig(agent.Config{
			Model:         cfg.LLM.Model,
			Temperature:   float32(cfg.LLM.Temperature),
			MaxTokens:     cfg.Agent.MaxTokens,
			MaxIterations: cfg.Agent.MaxIterations,
			Timeout:       cfg.Agent.Timeout,
		})
	if cfg.MarketData.APIKey != "" {
		builder = builder.WithMarketData(marketClient)
	}
	registry, err := builder.Build()
	if err != nil {
		return nil, err
	}

	routerCfg := router.DefaultConfig()
	routerCfg.Model = cfg.Router.Model
	if routerCfg.Model == "" {
		routerCfg.Model = cfg.LLM.Model
	}
	if cfg.Router.MaxTokens > 0 {
		routerCfg.MaxTokens = cfg.Router.MaxTokens
	}
	if cfg.Router.Timeout > 0 {
		routerCfg.Timeout = cfg.Router.Timeout
	}
	rt := router.New(provider, routerCfg, logger, router.WithRecorder(app.collector))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxWorkers = cfg.Orchestrator.MaxWorkers
	orchCfg.Parallel = cfg.Orchestrator.Parallel
	orchCfg.SynthesisModel = cfg.LLM.Model
	if cfg.Orchestrator.AgentTimeout > 0 {
		orchCfg.AgentTimeout = cfg.Orchestrator.AgentTimeout
	}
	if cfg.Orchestrator.SynthesisMaxTokens > 0 {
		orchCfg.SynthesisMaxTokens = cfg.Orchestrator.SynthesisMaxTokens
	}
	if cfg.Orchestrator.SynthesisTimeout > 0 {
		orchCfg.SynthesisTimeout = cfg.Orchestrator.SynthesisTimeout
	}
	app.orchestrator = orchestrator.New(registry, provider, orchCfg, logger, orchestrator.WithRecorder(app.collector))

	// 7. 护栏
	app.engine = guardrails.NewEngine(guardrailsConfig(cfg.Guardrails), app.sessionStore(), logger,
		guardrails.WithRecorder(app.collector),
		guardrails.WithAuditLogger(audit),
		guardrails.WithIntentProvider(provider),
	)
	app.engine.StartEviction(ctx, 5*time.Minute)

	// 8. 助手
	app.assistant = finagent.New(app.engine, rt, app.orchestrator, logger,
		finagent.WithIntentCheck(cfg.Guardrails.IntentCheck),
		finagent.WithParallel(cfg.Orchestrator.Parallel),
		finagent.WithRecorder(app.collector),
	)

	logger.Info("assistant ready",
		zap.Int("agents", len(app.assistant.Agents())),
		zap.String("guardrails_store", cfg.Guardrails.Store),
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.String("audit", cfg.Guardrails.Audit),
	)
	return app, nil
}

// newProvider 创建 OpenAI 兼容 Provider 并套上中间件链
func (a *App) newProvider() llm.Provider {
	cfg := a.cfg.LLM
	if cfg.APIKey == "" {
		a.logger.Warn("llm.api_key is empty, model requests will be rejected upstream")
	}
	base := openai.New(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		Timeout:     cfg.Timeout,
	}, a.logger)

	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	middlewares := []llm.Middleware{
		llm.RecoveryMiddleware(func(v any) {
			a.logger.Error("llm provider panic", zap.Any("panic", v))
		}),
		llm.TracingMiddleware(base.Name()),
		llm.MetricsMiddleware(base.Name(), a.collector),
		llm.LoggingMiddleware(a.logger),
		llm.RetryMiddleware(policy, a.logger),
	}
	if cfg.BreakerThreshold > 0 {
		cb := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Name:         base.Name(),
			Threshold:    cfg.BreakerThreshold,
			Timeout:      cfg.Timeout,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    llm.IsUpstreamFailure,
		}, a.logger)
		middlewares = append(middlewares, llm.CircuitBreakerMiddleware(cb))
	}
	middlewares = append(middlewares, llm.TimeoutMiddleware(cfg.Timeout))

	return llm.Wrap(base, middlewares...)
}

func (a *App) sessionStore() guardrails.SessionStore {
	g := a.cfg.Guardrails
	sc := guardrails.DefaultStoreConfig()
	if g.Retention > 0 {
		sc.Retention = g.Retention
	}
	if g.ActiveWindow > 0 {
		sc.ActiveWindow = g.ActiveWindow
	}
	sc.MaxSessions = g.MaxSessions

	if g.Store == "redis" {
		return guardrails.NewRedisStore(a.cache.Client(), sc)
	}
	return guardrails.NewMemoryStore(sc)
}

func (a *App) openAudit() (guardrails.AuditLogger, error) {
	switch a.cfg.Guardrails.Audit {
	case "database":
		db, err := database.Open(a.cfg.Database)
		if err != nil {
			return nil, err
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger,
			database.WithObserver(a.collector))
		if err != nil {
			return nil, err
		}
		a.pool = pool
		audit, err := guardrails.NewGormAuditLogger(pool.DB(), guardrails.WithTxRunner(
			func(ctx context.Context, fn func(tx *gorm.DB) error) error {
				return pool.WithTransactionRetry(ctx, 3, fn)
			}))
		if err != nil {
			return nil, fmt.Errorf("init audit table: %w", err)
		}
		return audit, nil
	case "memory":
		return guardrails.NewMemoryAuditLogger(10000), nil
	default:
		return nil, nil
	}
}

// guardrailsConfig 由应用配置生成护栏配置，话题列表为空时使用内置列表
func guardrailsConfig(g config.GuardrailsConfig) *guardrails.Config {
	c := guardrails.DefaultConfig()
	c.MaxInputLength = g.MaxInputLength
	c.MaxQueriesPerMinute = g.MaxQueriesPerMinute
	c.MaxQueriesPerHour = g.MaxQueriesPerHour
	if g.SpecialCharThreshold > 0 {
		c.SpecialCharThreshold = g.SpecialCharThreshold
	}
	if g.ActiveWindow > 0 {
		c.ActiveWindow = g.ActiveWindow
	}
	if len(g.ProhibitedTopics) > 0 {
		c.ProhibitedTopics = g.ProhibitedTopics
	}
	if len(g.SensitiveTopics) > 0 {
		c.SensitiveTopics = g.SensitiveTopics
	}
	return c
}

// Close 按创建的逆序释放资源
func (a *App) Close(ctx context.Context) error {
	a.cancel()
	if a.orchestrator != nil {
		a.orchestrator.Close()
	}

	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
