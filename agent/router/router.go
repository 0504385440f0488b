package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/finagent/agent"
	"github.com/BaSui01/finagent/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/finagent/agent/router"

// Decision 是一次路由的结果，每个查询重新生成，不缓存
type Decision struct {
	Query     string        `json:"-"`
	Agents    []agent.ID    `json:"agents"`
	Reasoning string        `json:"reasoning"`
	Source    Source        `json:"source"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Multi 是否需要多个智能体协作
func (d Decision) Multi() bool { return len(d.Agents) > 1 }

// Contains 判断是否路由到指定智能体
func (d Decision) Contains(id agent.ID) bool {
	for _, a := range d.Agents {
		if a == id {
			return true
		}
	}
	return false
}

// Recorder 记录路由结果
type Recorder interface {
	RecordRouting(agents []agent.ID, source Source)
}

// Config 路由器配置
type Config struct {
	Model       string        `yaml:"model" json:"model"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Temperature: 0,
		MaxTokens:   200,
		Timeout:     20 * time.Second,
	}
}

// Option 路由器选项
type Option func(*Router)

// WithRecorder 设置指标记录器
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// Router 用 LLM 把查询分类到五类智能体
type Router struct {
	provider llm.Provider
	config   *Config
	prompt   string
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建路由器
func New(provider llm.Provider, config *Config, logger *zap.Logger, opts ...Option) *Router {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		provider: provider,
		config:   config,
		prompt:   SystemPrompt(),
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "router")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteQuery 返回处理查询的智能体集合，任何失败都回退到 finance_qa，不返回错误
func (r *Router) RouteQuery(ctx context.Context, query string) Decision {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "router.route",
		trace.WithAttributes(attribute.Int("query.length", len(query))))
	defer span.End()

	var parsed Parsed
	output, err := r.complete(ctx, query)
	if err != nil {
		r.logger.Error("routing failed, using default agent", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		parsed = Parsed{
			Agents:    []agent.ID{agent.DefaultID},
			Reasoning: ReasoningError,
			Source:    SourceDefaultError,
		}
	} else {
		parsed = Parse(output)
		if parsed.Source == SourceDefaultUnparseable {
			r.logger.Warn("no valid agents in routing output", zap.String("output", truncate(output, 200)))
		}
	}

	d := Decision{
		Query:     query,
		Agents:    parsed.Agents,
		Reasoning: parsed.Reasoning,
		Source:    parsed.Source,
		Duration:  r.now().Sub(start),
		Timestamp: start,
	}

	names := make([]string, len(d.Agents))
	for i, id := range d.Agents {
		names[i] = id.String()
	}
	span.SetAttributes(
		attribute.StringSlice("routing.agents", names),
		attribute.String("routing.source", string(d.Source)),
	)
	if r.recorder != nil {
		r.recorder.RecordRouting(d.Agents, d.Source)
	}
	r.logger.Info("query routed",
		zap.Strings("agents", names),
		zap.String("source", string(d.Source)),
		zap.Duration("duration", d.Duration),
	)
	return d
}

func (r *Router) complete(ctx context.Context, query string) (out string, err error) {
	if r.provider == nil {
		return "", agent.ErrProviderNotSet
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("router panic: %v", rec)
		}
	}()

	opts := []llm.InvokeOption{llm.WithTemperature(r.config.Temperature)}
	if r.config.Model != "" {
		opts = append(opts, llm.WithModel(r.config.Model))
	}
	if r.config.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(r.config.MaxTokens))
	}
	return llm.Invoke(ctx, r.provider, []llm.Message{
		llm.SystemMessage(r.prompt),
		llm.UserMessage(query),
	}, opts...)
}

// ====== 提示词与说明 ======

var routingExamples = []struct {
	query, agents, reasoning string
}{
	{"What is a diversified portfolio?", "finance_qa", "General educational question about a financial concept."},
	{"What's the current price of Apple stock?", "market_analyst", "Requests real-time stock price data."},
	{"I have AAPL, MSFT, GOOGL in my portfolio. Analyze it.", "portfolio_analyzer,market_analyst", "Portfolio analysis that benefits from current market data."},
	{"I'm 30 and want to retire at 65. How much should I save?", "goal_planner", "Retirement savings calculation."},
	{"Should I use a Traditional IRA or Roth IRA?", "tax_educator", "Comparison of tax-advantaged account types."},
	{"What's Tesla's stock price and should I buy it?", "market_analyst,finance_qa", "Needs market data plus educational context on investing decisions."},
}

// SystemPrompt 构造路由提示词，列出五类智能体及示例
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a query routing expert for a financial AI assistant system.\n")
	b.WriteString("Your job is to analyze user queries and determine which specialized agent(s) should handle them.\n\n")
	b.WriteString("Available Agents:\n")

	ids := agent.AllIDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
		fmt.Fprintf(&b, "\n**%s**: %s\n", id, id.Description())
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("1. Analyze the user's query carefully\n")
	b.WriteString("2. Select the MOST appropriate agent(s) to handle it\n")
	b.WriteString("3. Usually select ONE agent, but you can select 2-3 if the query requires multiple specialties\n")
	b.WriteString("4. Respond with exactly two lines:\n")
	b.WriteString("AGENTS: <comma-separated agent names>\n")
	b.WriteString("REASONING: <one sentence explaining the choice>\n")
	fmt.Fprintf(&b, "5. Valid agent names: %s\n", strings.Join(names, ", "))

	b.WriteString("\nExamples:\n")
	for _, ex := range routingExamples {
		fmt.Fprintf(&b, "\nQuery: %q\nAGENTS: %s\nREASONING: %s\n", ex.query, ex.agents, ex.reasoning)
	}
	b.WriteString("\nNow route the following query:")
	return b.String()
}

// ExplainRouting 生成面向用户的路由说明
func ExplainRouting(d Decision) string {
	var b strings.Builder
	switch len(d.Agents) {
	case 0:
		return ""
	case 1:
		fmt.Fprintf(&b, "Routing to: **%s**", d.Agents[0].Label())
	default:
		b.WriteString("Routing to multiple agents:")
		for _, id := range d.Agents {
			fmt.Fprintf(&b, "\n- %s", id.Label())
		}
	}
	if r := strings.TrimSpace(d.Reasoning); r != "" {
		fmt.Fprintf(&b, "\n\n%s", r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
