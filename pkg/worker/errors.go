package worker

import "errors"

var (
	// ErrNotStarted reports a Submit before Start.
	ErrNotStarted = errors.New("worker pool not started")

	// ErrStopped reports a Submit after Stop.
	ErrStopped = errors.New("worker pool stopped")

	// ErrQueueFull reports a dropped job.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrStopTimeout reports workers still busy when the Stop deadline hit.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)
