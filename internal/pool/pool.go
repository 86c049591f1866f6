// Package pool 提供固定大小的 goroutine 工作池，用于限制批量再生成的并发度。
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed   = errors.New("pool is closed")
	ErrTaskPanicked = errors.New("task panicked")
)

// Task 表示一个工作单元
type Task func(ctx context.Context) error

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config 工作池配置
type Config struct {
	// 固定 worker 数量
	Workers int `yaml:"workers" json:"workers" env:"WORKERS"`
	// 有界队列长度，队列满时 Submit 阻塞（背压）
	QueueSize int `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 64,
	}
}

// =============================================================================
// 🏊 工作池
// =============================================================================

// Pool 固定 worker 数量、从有界队列拉取任务的工作池。
// 单个任务失败或 panic 不影响其他任务。
type Pool struct {
	queue  chan job
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	workers   int
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type job struct {
	ctx    context.Context
	task   Task
	result chan error
}

// New 创建工作池并立即启动全部 worker
func New(config Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	p := &Pool{
		queue:   make(chan job, config.QueueSize),
		logger:  logger.With(zap.String("component", "worker_pool")),
		workers: config.Workers,
	}
	p.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit 提交任务，返回只会收到一个结果的通道。
// 队列已满时阻塞，直到有空位或 ctx 结束。
func (p *Pool) Submit(ctx context.Context, task Task) (<-chan error, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	j := job{ctx: ctx, task: task, result: make(chan error, 1)}
	select {
	case p.queue <- j:
		p.submitted.Add(1)
		return j.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitWait 提交任务并等待其完成
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	result, err := p.Submit(ctx, task)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.active.Add(1)
		err := p.run(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		j.result <- err
		close(j.result)
	}
}

func (p *Pool) run(j job) (err error) {
	// 排队期间已取消的任务不再执行
	if ctxErr := j.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return j.task(j.ctx)
}

// Close 停止接收新任务，执行完队列中剩余任务后返回。可重复调用。
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// =============================================================================
// 📊 统计
// =============================================================================

// Stats 工作池统计信息
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats 返回当前统计信息
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
