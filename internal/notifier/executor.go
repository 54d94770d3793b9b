package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type task struct {
	name string
	fn   func(ctx context.Context)
}

// Executor 为有界队列加固定 worker 的后台执行器。
// Submit 从不阻塞，队列满或已关闭时丢弃并记录日志。
type Executor struct {
	queue   chan task
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor 启动 workers 个 worker；timeout 为单个任务的超时，0 表示不限。
func NewExecutor(workers, queueSize int, timeout time.Duration, logger *slog.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		queue:   make(chan task, queueSize),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.work()
	}
	return e
}

// Submit 入队一个后台任务，返回是否被接受。
func (e *Executor) Submit(name string, fn func(ctx context.Context)) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("executor closed, task dropped", "task", name)
		return false
	}
	select {
	case e.queue <- task{name: name, fn: fn}:
		return true
	default:
		e.logger.Warn("executor queue full, task dropped", "task", name)
		return false
	}
}

// Close 停止接收新任务并等待已入队任务执行完毕。
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Executor) work() {
	defer e.wg.Done()
	for t := range e.queue {
		e.run(t)
	}
}

func (e *Executor) run(t task) {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("background task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn(ctx)
}
