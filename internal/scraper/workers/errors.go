package workers

import "errors"

var (
	// ErrWorkerUnavailable means no worker freed up within the caller's
	// wait budget.
	ErrWorkerUnavailable = errors.New("no worker became available within the wait budget")

	// ErrPoolClosed means the pool is shut down or shutting down.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolStartup means no worker could be started at all.
	ErrPoolStartup = errors.New("no worker could be started")
)
