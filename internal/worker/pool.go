package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (p *Pool) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	p.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", p.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%d", p.workerID, workerNum)
	p.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Worker goroutine stopping - queue closed",
					slog.String("worker_name", workerName),
				)
				return
			}
			p.runTask(ctx, workerName, task)
		}
	}
}

// runTask executes one task under the job timeout and recovers its panics
func (p *Pool) runTask(ctx context.Context, workerName string, task Task) {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				slog.String("worker_name", workerName),
				slog.String("task_id", task.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	p.logger.Info("Worker received task",
		slog.String("worker_name", workerName),
		slog.String("task_id", task.ID),
	)

	task.Run(taskCtx)

	p.logger.Info("Task completed",
		slog.String("worker_name", workerName),
		slog.String("task_id", task.ID),
		slog.Duration("duration", time.Since(start)),
	)
}
