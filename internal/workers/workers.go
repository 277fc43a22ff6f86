package workers

import (
	"context"
	"time"
)

// Workers is the aggregate of all background jobs of one client process.
type Workers struct {
	workers []Worker
}

// New returns an aggregate over the given workers.
func New(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

// StartAll starts every worker on the same schedule.
func (w *Workers) StartAll(ctx context.Context, interval time.Duration) {
	for _, worker := range w.workers {
		worker.Start(ctx, interval)
	}
}

// StopAll stops every worker and blocks until all of them have exited.
// Workers are stopped in start order; each Stop waits for that worker's
// in-flight cycle.
func (w *Workers) StopAll() {
	for _, worker := range w.workers {
		worker.Stop()
	}
}
