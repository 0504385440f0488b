package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 正常放行
	StateClosed State = iota
	// StateOpen 熔断中，直接拒绝
	StateOpen
	// StateHalfOpen 试探性放行少量请求
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)

// Config 熔断器配置
type Config struct {
	// Name 出现在日志里，区分多个熔断器
	Name string

	// Threshold 连续失败多少次后打开
	Threshold int

	// Timeout 单次调用超时
	Timeout time.Duration

	// ResetTimeout 打开后多久进入半开
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的并发试探数
	HalfOpenMaxCalls int

	// IsFailure 判断错误是否计入失败，为 nil 时所有错误都计入。
	// 请求参数错误、鉴权失败这类与上游健康无关的错误应返回 false。
	IsFailure func(err error) bool

	// OnStateChange 状态变更回调，异步执行
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，熔断器打开时直接返回 ErrCircuitOpen
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// CallWithResult 执行调用并返回结果
	CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)

	// State 当前状态
	State() State

	// Reset 手动恢复到关闭状态
	Reset()
}

type breaker struct {
	config *Config
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewCircuitBreaker 创建熔断器，非法参数回落到默认值
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := *config
	defaults := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = defaults.HalfOpenMaxCalls
	}

	l := logger.With(zap.String("component", "circuit_breaker"))
	if cfg.Name != "" {
		l = l.With(zap.String("breaker", cfg.Name))
	}

	return &breaker{
		config: &cfg,
		logger: l,
		state:  StateClosed,
	}
}

func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.CallWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// CallWithResult 状态检查 -> 带超时执行 -> 按结果推进状态机
func (b *breaker) CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan callResult, 1)
	go func() {
		result, err := fn(callCtx)
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		// 调用方自己取消不算上游故障
		if ctx.Err() != nil {
			b.release()
			return nil, ctx.Err()
		}
		b.afterCall(false)
		return nil, fmt.Errorf("call timed out after %s: %w", b.config.Timeout, callCtx.Err())

	case res := <-resultCh:
		success := res.err == nil || !b.countsAsFailure(res.err)
		b.afterCall(success)
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

type callResult struct {
	result any
	err    error
}

func (b *breaker) countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if b.config.IsFailure == nil {
		return true
	}
	return b.config.IsFailure(err)
}

func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 1
			b.logger.Info("circuit breaker half-open")
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", b.state)
	}
}

// release 归还半开试探名额，不改变状态
func (b *breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCallCount > 0 {
		b.halfOpenCallCount--
	}
}

func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.logger.Info("circuit breaker closed", zap.Int("half_open_calls", b.halfOpenCallCount))
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("circuit breaker probe failed, reopening")
		b.setState(StateOpen)
		b.halfOpenCallCount = 0
	}
}

// setState 调用方须持有锁
func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState
	if b.config.OnStateChange != nil && oldState != newState {
		go b.config.OnStateChange(oldState, newState)
	}
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("circuit breaker reset", zap.String("from_state", b.state.String()))
	b.setState(StateClosed)
	b.failureCount = 0
	b.halfOpenCallCount = 0
}
