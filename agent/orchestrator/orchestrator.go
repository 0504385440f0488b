package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/internal/pool"
	"github.com/BaSui01/finagent/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/BaSui01/finagent/agent/orchestrator"

// ErrAgentUnavailable 调度表中没有该智能体
var ErrAgentUnavailable = errors.New("agent not available")

// Dispatcher 按标识查找智能体，*agent.Registry 满足该接口
type Dispatcher interface {
	Get(id agent.ID) (agent.Agent, bool)
	Infos() []agent.Info
}

// Recorder 记录执行指标
type Recorder interface {
	RecordAgentExecution(id agent.ID, duration time.Duration, err error)
	RecordSynthesis(agents int, fallback bool)
}

// Config 编排器配置
type Config struct {
	// MaxWorkers 并行调用的工作协程上限
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
	// AgentTimeout 单个智能体调用超时，超时视为该智能体失败
	AgentTimeout time.Duration `yaml:"agent_timeout" json:"agent_timeout"`
	// Parallel 多智能体时是否并行
	Parallel bool `yaml:"parallel" json:"parallel"`

	SynthesisModel       string        `yaml:"synthesis_model" json:"synthesis_model"`
	SynthesisTemperature float32       `yaml:"synthesis_temperature" json:"synthesis_temperature"`
	SynthesisMaxTokens   int           `yaml:"synthesis_max_tokens" json:"synthesis_max_tokens"`
	SynthesisTimeout     time.Duration `yaml:"synthesis_timeout" json:"synthesis_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:           5,
		AgentTimeout:         45 * time.Second,
		Parallel:             true,
		SynthesisTemperature: 0.3,
		SynthesisMaxTokens:   2500,
		SynthesisTimeout:     60 * time.Second,
	}
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithRecorder 设置指标记录器
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) { o.recorder = rec }
}

// WithPool 使用外部提供的协程池，调用方负责关闭
func WithPool(p *pool.GoroutinePool) Option {
	return func(o *Orchestrator) {
		o.pool = p
		o.ownsPool = false
	}
}

// Orchestrator 调用一个或多个智能体并综合结果
// 所有公开方法都返回文本，不向调用方传播错误
type Orchestrator struct {
	agents   Dispatcher
	provider llm.Provider
	config   *Config
	pool     *pool.GoroutinePool
	ownsPool bool
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New 创建编排器，provider 用于综合多智能体输出
func New(agents Dispatcher, provider llm.Provider, config *Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "orchestrator"))

	o := &Orchestrator{
		agents:   agents,
		provider: provider,
		config:   config,
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pool == nil {
		pc := pool.DefaultGoroutinePoolConfig()
		if config.MaxWorkers > 0 {
			pc.MaxWorkers = config.MaxWorkers
		}
		pc.PanicHandler = func(r any) {
			logger.Error("agent task panicked", zap.Any("panic", r))
		}
		o.pool = pool.NewGoroutinePool(pc)
		o.ownsPool = true
	}
	return o
}

// Close 释放自建的协程池
func (o *Orchestrator) Close() {
	if o.ownsPool {
		o.pool.Close()
	}
}

// Config 返回当前配置
func (o *Orchestrator) Config() Config { return *o.config }

// AgentInfo 返回全部智能体描述
func (o *Orchestrator) AgentInfo() []agent.Info {
	if o.agents == nil {
		return nil
	}
	return o.agents.Infos()
}

// ====== 执行 ======

// ExecuteSingle 调用单个智能体
func (o *Orchestrator) ExecuteSingle(ctx context.Context, id agent.ID, query, threadID string) string {
	o.logger.Info("executing single agent", zap.Stringer("agent_id", id))
	return o.invoke(ctx, id, query, threadID).Output()
}

// ExecuteMultiple 调用多个智能体；只有一个结果时直接返回，否则综合
func (o *Orchestrator) ExecuteMultiple(ctx context.Context, ids []agent.ID, query, threadID string, parallel bool) string {
	results := o.Run(ctx, ids, query, threadID, parallel)
	switch len(results) {
	case 0:
		return "Error: no agents selected."
	case 1:
		return results[0].Output()
	default:
		text, _ := o.Synthesize(ctx, query, results)
		return text
	}
}

// Run 调用智能体并按请求顺序返回结果，重复的标识只执行一次
// 每个智能体的失败只体现在自己的 Result 中，不影响其他智能体
func (o *Orchestrator) Run(ctx context.Context, ids []agent.ID, query, threadID string, parallel bool) []Result {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	mode := "sequential"
	if parallel && len(ids) > 1 {
		mode = "parallel"
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.StringSlice("agents", names),
		attribute.String("mode", mode),
	))
	defer span.End()
	o.logger.Info("executing agents", zap.Strings("agents", names), zap.String("mode", mode))

	results := make([]Result, len(ids))
	if mode == "sequential" {
		for i, id := range ids {
			results[i] = o.invoke(ctx, id, query, threadID)
		}
		return results
	}

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			// 缓冲为 1：SubmitWait 提前返回时任务仍可写入而不阻塞
			out := make(chan Result, 1)
			err := o.pool.SubmitWait(ctx, func(ctx context.Context) error {
				out <- o.invoke(ctx, id, query, threadID)
				return nil
			})
			if err != nil {
				o.logger.Warn("agent task not completed", zap.Stringer("agent_id", id), zap.Error(err))
				results[i] = Result{Agent: id, Err: err}
				return nil
			}
			results[i] = <-out
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("agents.failed", failed))
	return results
}

func (o *Orchestrator) invoke(ctx context.Context, id agent.ID, query, threadID string) (res Result) {
	res.Agent = id
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(attribute.String("agent.id", id.String())))
	defer func() {
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = fmt.Errorf("agent panic: %v", r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "agent failed")
			o.logger.Error("agent failed", zap.Stringer("agent_id", id), zap.Error(res.Err), zap.Duration("duration", res.Duration))
		} else {
			o.logger.Info("agent completed", zap.Stringer("agent_id", id), zap.Duration("duration", res.Duration))
		}
		span.End()
		if o.recorder != nil {
			o.recorder.RecordAgentExecution(id, res.Duration, res.Err)
		}
	}()

	var (
		a  agent.Agent
		ok bool
	)
	if o.agents != nil {
		a, ok = o.agents.Get(id)
	}
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrAgentUnavailable, id)
		return res
	}

	if o.config.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.AgentTimeout)
		defer cancel()
	}
	res.Text, res.Err = a.Invoke(ctx, query, threadID)
	return res
}

func dedupe(ids []agent.ID) []agent.ID {
	seen := make(map[agent.ID]bool, len(ids))
	out := make([]agent.ID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
