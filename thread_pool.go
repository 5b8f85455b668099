package simcore

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ThreadPool is a fixed pool of workers consuming a shared task queue.
// Workers record per-task duration into aggregate counters that feed the
// manager's adaptive scheduling.
type ThreadPool struct {
	workers int
	tasks   chan poolTask
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	stopped   atomic.Bool
	active    atomic.Int64
	completed atomic.Uint64
	totalNs   atomic.Int64

	logger Logger
}

type poolTask struct {
	fn     func() error
	future *TaskFuture
}

// TaskFuture resolves when its task finishes. Wait blocks until completion
// and returns the task's error; Done exposes the completion channel for
// select-based callers.
type TaskFuture struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *TaskFuture {
	return &TaskFuture{done: make(chan struct{})}
}

func failedFuture(err error) *TaskFuture {
	f := newFuture()
	f.complete(err)
	return f
}

// complete resolves the future exactly once; during shutdown a worker and the
// submitter can both try to fail the same task.
func (f *TaskFuture) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the task has finished and returns its error.
func (f *TaskFuture) Wait() error {
	<-f.done
	return f.err
}

// Done returns a channel closed when the task has finished.
func (f *TaskFuture) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error. Only valid after Done is closed.
func (f *TaskFuture) Err() error {
	return f.err
}

// PoolOption configures a ThreadPool.
type PoolOption func(*ThreadPool)

// WithPoolLogger supplies a logger for worker diagnostics.
func WithPoolLogger(logger Logger) PoolOption {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithQueueCapacity sizes the task queue. Submissions beyond the capacity
// block until a worker frees a slot.
func WithQueueCapacity(capacity int) PoolOption {
	return func(p *ThreadPool) {
		if capacity > 0 {
			p.tasks = make(chan poolTask, capacity)
		}
	}
}

// NewThreadPool starts a pool with the given worker count; zero or negative
// falls back to the hardware concurrency.
func NewThreadPool(workers int, opts ...PoolOption) *ThreadPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers <= 0 {
			workers = 4
		}
	}
	p := &ThreadPool{
		workers: workers,
		tasks:   make(chan poolTask, 256),
		quit:    make(chan struct{}),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

func (p *ThreadPool) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

func (p *ThreadPool) run(task poolTask) {
	start := time.Now()
	p.active.Add(1)
	err := p.execute(task.fn)
	p.active.Add(-1)

	p.completed.Add(1)
	p.totalNs.Add(int64(time.Since(start)))
	task.future.complete(err)
}

// execute shields the worker from a panicking task; the panic surfaces as
// the future's error instead of killing the worker.
func (p *ThreadPool) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simcore: task panic: %v", r)
			p.logger.Error("task panic in worker", "panic", r)
		}
	}()
	return fn()
}

// Submit enqueues a task and returns its future. After Shutdown the returned
// future is already failed with ErrPoolShutdown; Submit never blocks
// indefinitely on a stopped pool and never drops a task silently.
func (p *ThreadPool) Submit(fn func() error) *TaskFuture {
	if fn == nil || p.stopped.Load() {
		return failedFuture(ErrPoolShutdown)
	}
	future := newFuture()
	select {
	case <-p.quit:
		return failedFuture(ErrPoolShutdown)
	case p.tasks <- poolTask{fn: fn, future: future}:
		// The send can win even after quit closes. If the shutdown drain
		// already ran, this task would sit in the queue unresolved, so fail
		// it here; complete is once-only, so a racing worker or the drain
		// cannot resolve it twice.
		if p.stopped.Load() {
			future.complete(ErrPoolShutdown)
		}
		return future
	}
}

// Shutdown stops the pool: it flags the pool stopped, wakes every worker,
// and joins them. Tasks still queued when the workers exit are failed rather
// than left hanging. Shutdown is idempotent.
func (p *ThreadPool) Shutdown() {
	p.once.Do(func() {
		p.stopped.Store(true)
		close(p.quit)
		p.wg.Wait()

		for {
			select {
			case task := <-p.tasks:
				task.future.complete(ErrPoolShutdown)
			default:
				return
			}
		}
	})
}

// WorkerCount returns the fixed number of workers.
func (p *ThreadPool) WorkerCount() int {
	return p.workers
}

// QueuedTasks returns the number of tasks waiting for a worker.
func (p *ThreadPool) QueuedTasks() int {
	return len(p.tasks)
}

// ActiveTasks returns the number of tasks currently executing.
func (p *ThreadPool) ActiveTasks() int {
	return int(p.active.Load())
}

// AverageTaskTime returns the mean duration across completed tasks.
func (p *ThreadPool) AverageTaskTime() time.Duration {
	completed := p.completed.Load()
	if completed == 0 {
		return 0
	}
	return time.Duration(p.totalNs.Load() / int64(completed))
}

// Info snapshots the pool's load metrics.
func (p *ThreadPool) Info() PoolInfo {
	return PoolInfo{
		Workers:         p.WorkerCount(),
		QueuedTasks:     p.QueuedTasks(),
		ActiveTasks:     p.ActiveTasks(),
		AverageTaskTime: p.AverageTaskTime(),
	}
}
