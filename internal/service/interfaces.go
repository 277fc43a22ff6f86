package service

import (
	"context"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// DataProvider is the per-feature façade exposed to the sync orchestrator.
// One provider exists per feature; the orchestrator serializes cycles of the
// same feature but may run different features concurrently.
type DataProvider interface {
	Feature() models.Feature

	// PrepareForFirstSync marks every local record of the feature as
	// modified, so the next FetchChangedObjects uploads everything, and
	// clears the server cursor.
	PrepareForFirstSync(ctx context.Context) error

	// FetchChangedObjects collects local records changed since the last
	// acknowledged sync and encrypts them for upload. Pure read: a failed
	// upload never loses local state.
	FetchChangedObjects(ctx context.Context, crypter crypto.Crypter) ([]models.SyncableRecord, error)

	// HandleInitialSyncResponse reconciles the first-ever response for
	// this feature on this device: every received record is applied
	// unconditionally, merged positionally for ordered structures.
	HandleInitialSyncResponse(ctx context.Context, received []models.SyncableRecord, clientTimestamp time.Time, serverTimestamp string, crypter crypto.Crypter) error

	// HandleSyncResponse reconciles a steady-state response under the
	// last-write-wins rules, then clears pending-sync markers of the sent
	// batch that the round trip acknowledged.
	HandleSyncResponse(ctx context.Context, sent, received []models.SyncableRecord, clientTimestamp time.Time, serverTimestamp string, crypter crypto.Crypter) error

	// LastSyncTimestamp returns the opaque server cursor; empty forces a
	// full (initial) sync.
	LastSyncTimestamp(ctx context.Context) (string, error)
	SetLastSyncTimestamp(ctx context.Context, cursor string) error

	// HandleSyncError reports an error surfaced during the cycle. It
	// records, it does not resolve; the orchestrator decides on retry.
	HandleSyncError(err error)
}

// applyOptions carries the per-pass reconciliation inputs shared by every
// strategy.
type applyOptions struct {
	// deduplicate selects the first-sync path: remote state wins outright,
	// without timestamp comparison.
	deduplicate bool

	// clientTimestamp is the moment the local snapshot for this cycle was
	// taken; it is the precedence boundary for local-wins decisions.
	clientTimestamp time.Time

	crypter crypto.Crypter
	key     []byte
}

// applyStats counts the outcome of one reconciliation pass.
type applyStats struct {
	applied int
	skipped int
}

// ReconciliationStrategy is the shape-specific half of the response
// handler: flat for settings, tree for bookmarks, list for tabs. A strategy
// owns no state across calls — every invocation receives a transaction-
// scoped view and must leave it consistent whether the pass commits or is
// retried.
type ReconciliationStrategy interface {
	// PrepareForFirstSync marks all local records modified as of now.
	PrepareForFirstSync(ctx context.Context, tx store.Tx, now time.Time) error

	// CollectChanges enumerates locally changed records and encrypts
	// non-tombstone payloads.
	CollectChanges(ctx context.Context, tx store.Tx, crypter crypto.Crypter, key []byte) ([]models.SyncableRecord, error)

	// Apply reconciles the received batch against local state under the
	// merge rules selected by opts.
	Apply(ctx context.Context, tx store.Tx, received []models.SyncableRecord, opts applyOptions) (applyStats, error)

	// Purge physically removes a tombstoned record whose deletion the
	// server acknowledged.
	Purge(ctx context.Context, tx store.Tx, id string) error

	// Resurrect cancels a pending local deletion: the server reports the
	// record still exists elsewhere, so deleting it would lose data.
	Resurrect(ctx context.Context, tx store.Tx, id string) error

	// ClearMarker removes the record-level pending-upload flag of one
	// acknowledged sent record. Shapes whose only marker is the shared
	// sync metadata have nothing to do here.
	ClearMarker(ctx context.Context, tx store.Tx, id string) error
}
