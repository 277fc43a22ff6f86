package service

import (
	"context"
	"sync"
	"time"
)

// SyncJob periodically runs one feature's sync cycle. Each provider owns
// its job handle; there is no shared or package-level task state.
type SyncJob interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
}

type syncJob struct {
	syncer *Syncer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that calls the syncer's SyncCycle on a
// ticker. The job is idle until Start is called.
func NewSyncJob(syncer *Syncer) SyncJob {
	return &syncJob{syncer: syncer}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine that runs one cycle every interval. If
// interval is zero or negative it defaults to 5 minutes. Stopping prevents
// the next tick; an in-flight cycle always runs to commit or failure, so
// the local store is never left half-merged.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				// The cycle context is detached from the job's:
				// cancellation must not tear down a reconciliation
				// mid-pass.
				_, _ = j.syncer.SyncCycle(context.WithoutCancel(jobCtx))
			}
		}
	}()
}

// Stop implements SyncJob. It cancels the background goroutine's context
// and blocks until the goroutine (including any in-flight cycle) has fully
// exited. Safe to call when the job is not running.
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
