package worker

import "errors"

var (
	// ErrPoolStopped is returned when a task is submitted after Stop
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolNotStarted is returned when a task is submitted before Start
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrQueueFull is returned when every worker is busy and the queue has no room
	ErrQueueFull = errors.New("worker queue full")
)
