package store

import (
	"context"
	"time"

	"github.com/MKhiriev/go-browser-sync/models"
)

// LocalStore is the persistent store of one device. All reconciliation
// reads and writes go through a transaction obtained from Begin; feature
// cursors live outside the transaction and are updated only after a
// successful commit.
type LocalStore interface {
	// Begin opens a transaction-scoped view for one feature. The view is
	// isolated: mutations are invisible to other readers until Save.
	Begin(ctx context.Context, feature models.Feature) (Tx, error)

	// FeatureStates returns the repository for per-feature sync cursors.
	FeatureStates() FeatureStateRepository

	Close() error
}

// Tx is one transaction-scoped view of the local store. Save either commits
// every mutation atomically or fails; on [ErrMergeConflict] the caller must
// Discard and retry the whole pass against a fresh transaction.
type Tx interface {
	Settings() SettingsRepository
	Bookmarks() BookmarksRepository
	Tabs() TabsRepository
	Metadata() MetadataRepository

	// Save commits the transaction. Fails with ErrMergeConflict when a
	// concurrent writer advanced the feature's revision since Begin; any
	// other error is a non-retryable storage failure.
	Save(ctx context.Context) error

	// Discard abandons the transaction. Safe to call after Save.
	Discard()
}

// SettingsRepository is the flat-shaped record store keyed by SettingKey.
type SettingsRepository interface {
	Get(ctx context.Context, key models.SettingKey) (models.Setting, error)
	All(ctx context.Context) ([]models.Setting, error)
	Upsert(ctx context.Context, setting models.Setting) error

	// SetValue sets or clears a setting's value. Clearing (nil) is the
	// tombstone application path and is idempotent.
	SetValue(ctx context.Context, key models.SettingKey, value *string) error
}

// BookmarksRepository loads and saves the bookmark arena wholesale. The
// tree of one device is small enough that per-pass materialization is
// cheaper than piecemeal row access during reconciliation.
type BookmarksRepository interface {
	Tree(ctx context.Context) (*models.BookmarkTree, error)
	SaveTree(ctx context.Context, tree *models.BookmarkTree) error
}

// TabsRepository stores per-device open-tab lists keyed by device id.
type TabsRepository interface {
	Get(ctx context.Context, deviceID string) (*models.DeviceTabs, error)
	All(ctx context.Context) ([]*models.DeviceTabs, error)
	Upsert(ctx context.Context, tabs *models.DeviceTabs) error

	// SoftDelete marks a device list deleted without removing the row,
	// so the tombstone can propagate.
	SoftDelete(ctx context.Context, deviceID string) error
}

// MetadataRepository tracks per-record sync metadata of the transaction's
// feature: the local modification time not yet acknowledged by the server.
type MetadataRepository interface {
	Get(ctx context.Context, key string) (models.SyncMetadata, error)
	GetBatch(ctx context.Context, keys []string) (map[string]models.SyncMetadata, error)
	All(ctx context.Context) ([]models.SyncMetadata, error)

	// SetLastModified records (non-nil) or acknowledges (nil) a local
	// modification. The entry is created on first use and never deleted.
	SetLastModified(ctx context.Context, key string, at *time.Time) error
}

// FeatureStateRepository persists the opaque server-issued sync cursor per
// feature. An empty cursor forces a full (initial) sync.
type FeatureStateRepository interface {
	GetLastSyncTimestamp(ctx context.Context, feature models.Feature) (string, error)
	SetLastSyncTimestamp(ctx context.Context, feature models.Feature, cursor string) error
}
