// Package workers manages the background sync jobs of the client: one
// periodic job per synchronized feature, started and stopped as a unit.
package workers

import (
	"context"
	"time"
)

// Worker is one background job with an owned lifecycle. Start launches the
// job's goroutine; Stop blocks until it has fully exited, including any
// in-flight work.
//
// service.SyncJob satisfies this interface.
type Worker interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
}
