package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/finagent/llm/circuitbreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler 处理一次补全请求
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware 包装 Handler
type Middleware func(next Handler) Handler

// Chain 中间件链，先添加的在最外层
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain 创建中间件链
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use 追加中间件
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then 用链中所有中间件包装 h
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len 返回中间件数量
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// =============================================================================
// 🔗 Provider 包装
// =============================================================================

type wrappedProvider struct {
	inner   Provider
	handler Handler
}

// Wrap 返回经过中间件处理的 Provider，Name 保持不变
func Wrap(p Provider, middlewares ...Middleware) Provider {
	if p == nil || len(middlewares) == 0 {
		return p
	}
	return &wrappedProvider{
		inner:   p,
		handler: NewChain(middlewares...).Then(p.Completion),
	}
}

func (w *wrappedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return w.handler(ctx, req)
}

func (w *wrappedProvider) Name() string { return w.inner.Name() }

// =============================================================================
// 🧩 内置中间件
// =============================================================================

// LoggingMiddleware 记录请求模型、消息数、耗时与 token 用量
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
				zap.Int("tools", len(req.Tools)),
				zap.Duration("duration", time.Since(start)),
			}
			if agentID := req.Metadata["agent_id"]; agentID != "" {
				fields = append(fields, zap.String("agent_id", agentID))
			}
			if err != nil {
				logger.Warn("llm request failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if resp != nil {
				fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
			}
			logger.Debug("llm request completed", fields...)
			return resp, err
		}
	}
}

// TimeoutMiddleware 为没有截止时间的请求设置超时
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if _, ok := ctx.Deadline(); ok || timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware 将 panic 转为 *PanicError
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					resp, err = nil, &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError 表示被恢复的 panic
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
}

// DefaultRetryPolicy 返回默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// RetryMiddleware 对标记为 Retryable 的 *Error 做指数退避重试，其他错误立即返回
func RetryMiddleware(policy RetryPolicy, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			var lastErr error
			for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
				if attempt > 0 {
					delay := policy.delay(attempt)
					logger.Debug("retrying llm request", zap.Int("attempt", attempt), zap.Duration("delay", delay))
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(delay):
					}
				}

				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				var llmErr *Error
				if !errors.As(err, &llmErr) || !llmErr.Retryable {
					return nil, err
				}
				logger.Warn("llm request failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
			}
			return nil, lastErr
		}
	}
}

// IsUpstreamFailure 判断错误是否说明上游不健康：可重试的 *Error、超时与非结构化错误计入，
// 参数、鉴权、配额类错误不计入
func IsUpstreamFailure(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable || llmErr.Code == ErrUpstreamError || llmErr.Code == ErrUpstreamTimeout
	}
	return true
}

// CircuitBreakerMiddleware 上游连续失败时快速失败，熔断期间返回 ErrProviderUnavailable
func CircuitBreakerMiddleware(cb circuitbreaker.CircuitBreaker) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			resp, err := circuitbreaker.Execute(cb, ctx, func(ctx context.Context) (*ChatResponse, error) {
				return next(ctx, req)
			})
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
				return nil, &Error{
					Code:       ErrProviderUnavailable,
					Message:    "llm provider temporarily unavailable: " + err.Error(),
					HTTPStatus: 503,
				}
			}
			return resp, err
		}
	}
}

// MetricsCollector LLM 指标接口
type MetricsCollector interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// MetricsMiddleware 记录请求次数、耗时与 token 用量
func MetricsMiddleware(providerName string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "success"
			if err != nil {
				status = "error"
			}
			model := req.Model
			var prompt, completion int
			if resp != nil {
				if resp.Model != "" {
					model = resp.Model
				}
				prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			}
			collector.RecordLLMRequest(providerName, model, status, time.Since(start), prompt, completion)
			return resp, err
		}
	}
}

// TracingMiddleware 为每次补全创建 span
func TracingMiddleware(providerName string) Middleware {
	tracer := otel.Tracer("github.com/BaSui01/finagent/llm")
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			ctx, span := tracer.Start(ctx, "llm.completion", trace.WithAttributes(
				attribute.String("llm.provider", providerName),
				attribute.String("llm.model", req.Model),
				attribute.Int("llm.messages", len(req.Messages)),
			))
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}
			if resp != nil {
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
					attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
				)
			}
			return resp, err
		}
	}
}
