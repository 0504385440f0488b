// Package pool 提供有界的 goroutine 池，用于限制并发的智能体调用。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed   = errors.New("pool is closed")
	ErrPoolFull     = errors.New("pool is full")
	ErrTaskPanicked = errors.New("task panicked")
)

// Task 是一个工作单元
type Task func(ctx context.Context) error

// GoroutinePool 维护至多 MaxWorkers 个工作协程
type GoroutinePool struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	done        chan struct{}
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	closeOnce   sync.Once
	wg          sync.WaitGroup

	// 指标
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout  time.Duration
	panicHandler func(any)
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// GoroutinePoolConfig 池配置
type GoroutinePoolConfig struct {
	MaxWorkers   int           `yaml:"max_workers" json:"max_workers"`
	QueueSize    int           `yaml:"queue_size" json:"queue_size"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	PanicHandler func(any)     `yaml:"-" json:"-"`
}

// DefaultGoroutinePoolConfig 返回默认配置，5 个工作协程对应五类智能体
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  5,
		QueueSize:   64,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool 创建池，非法取值回退到默认配置
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	def := DefaultGoroutinePoolConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize < 0 {
		config.QueueSize = def.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	return &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		done:         make(chan struct{}),
		idleTimeout:  config.IdleTimeout,
		panicHandler: config.PanicHandler,
	}
}

// Size 返回最大工作协程数
func (p *GoroutinePool) Size() int { return p.maxWorkers }

// Submit 提交任务但不等待结果，队列满且无法扩容时返回 ErrPoolFull
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{task: task, ctx: ctx}
	p.ensureWorker()
	select {
	case p.taskQueue <- wrapper:
		return nil
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	if p.trySpawnWorker() {
		select {
		case p.taskQueue <- wrapper:
			return nil
		default:
		}
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

// SubmitWait 提交任务并阻塞到任务结束、ctx 取消或池关闭
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{
		task:   task,
		ctx:    ctx,
		result: make(chan error, 1),
	}

	p.ensureWorker()
	select {
	case p.taskQueue <- wrapper:
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	case <-p.done:
		p.rejected.Add(1)
		return ErrPoolClosed
	}

	select {
	case err := <-wrapper.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			p.workerCount.Add(-1)
			return

		case wrapper := <-p.taskQueue:
			p.activeCount.Add(1)
			err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			if wrapper.result != nil {
				wrapper.result <- err
			}
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// 空闲超时，至少保留一个工作协程
			if p.tryRetireWorker() {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

// tryRetireWorker 在计数大于 1 时原子地减一，成功后调用方必须退出
func (p *GoroutinePool) tryRetireWorker() bool {
	for {
		current := p.workerCount.Load()
		if current <= 1 {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	if err := wrapper.ctx.Err(); err != nil {
		return err
	}
	return wrapper.task(wrapper.ctx)
}

// Close 关闭池并等待工作协程退出，队列中尚未执行的任务被丢弃
func (p *GoroutinePool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
	})
	p.wg.Wait()
}

// Stats 返回池统计
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats 池统计
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
