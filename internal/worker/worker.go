package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultConcurrency is the number of worker goroutines
	DefaultConcurrency = 4
	// DefaultJobTimeout bounds one task
	DefaultJobTimeout = 2 * time.Minute
)

// Task is one unit of background work
type Task struct {
	ID  string
	Run func(ctx context.Context)
}

// Config holds worker pool configuration
type Config struct {
	Logger      *slog.Logger
	WorkerID    string
	Concurrency int
	QueueSize   int
	JobTimeout  time.Duration
}

// Pool runs submitted tasks on a fixed set of goroutines
type Pool struct {
	logger      *slog.Logger
	workerID    string
	concurrency int
	jobTimeout  time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	jobs    chan Task
	wg      sync.WaitGroup
}

// NewPool creates a new worker pool
func NewPool(cfg *Config) *Pool {
	p := &Pool{
		logger:      cfg.Logger,
		workerID:    cfg.WorkerID,
		concurrency: cfg.Concurrency,
		jobTimeout:  cfg.JobTimeout,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.workerID == "" {
		p.workerID = "validator"
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	if p.jobTimeout <= 0 {
		p.jobTimeout = DefaultJobTimeout
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = p.concurrency
	}
	p.jobs = make(chan Task, queueSize)
	return p
}

// Start spawns the worker goroutines. Tasks run under contexts derived from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("Starting worker pool",
		slog.Int("concurrency", p.concurrency),
		slog.Duration("job_timeout", p.jobTimeout),
	)
	p.spawnWorkerPool(ctx)
}

// Submit queues a task without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stopped:
		return ErrPoolStopped
	case !p.started:
		return ErrPoolNotStarted
	}

	select {
	case p.jobs <- task:
		return nil
	default:
		return fmt.Errorf("%w: task %s", ErrQueueFull, task.ID)
	}
}

// Stop refuses new tasks, lets queued and running tasks finish and waits for
// every worker to exit
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool...")
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}
