package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// dataProvider wires one feature's strategy, sent-item reconciler, and the
// local store into the four-phase protocol. It owns no reconciliation state
// across calls; the only mutable fields are the last reported error and the
// retry ceiling.
type dataProvider struct {
	feature    models.Feature
	localStore store.LocalStore
	strategy   ReconciliationStrategy
	reconciler *sentItemReconciler
	logger     *logger.Logger

	maxAttempts int

	mu      sync.Mutex
	lastErr error
}

// NewSettingsProvider returns the flat-shaped provider for the settings
// feature.
func NewSettingsProvider(localStore store.LocalStore, log *logger.Logger) DataProvider {
	return newProvider(models.FeatureSettings, localStore, newSettingsStrategy(log), log)
}

// NewBookmarksProvider returns the tree-shaped provider for the bookmarks
// feature.
func NewBookmarksProvider(localStore store.LocalStore, log *logger.Logger) DataProvider {
	return newProvider(models.FeatureBookmarks, localStore, newBookmarksStrategy(log), log)
}

// NewTabsProvider returns the list-shaped provider for the open-tabs
// feature. deviceID identifies the local device's own tab list.
func NewTabsProvider(localStore store.LocalStore, deviceID, deviceName string, log *logger.Logger) DataProvider {
	return newProvider(models.FeatureTabs, localStore, newTabsStrategy(deviceID, deviceName, log), log)
}

func newProvider(feature models.Feature, localStore store.LocalStore, strategy ReconciliationStrategy, log *logger.Logger) *dataProvider {
	return &dataProvider{
		feature:     feature,
		localStore:  localStore,
		strategy:    strategy,
		reconciler:  newSentItemReconciler(strategy, log),
		logger:      log,
		maxAttempts: maxReconcileAttempts,
	}
}

func (p *dataProvider) Feature() models.Feature {
	return p.feature
}

func (p *dataProvider) PrepareForFirstSync(ctx context.Context) error {
	now := time.Now().UTC()

	err := p.runReconciliation(ctx, func(tx store.Tx) error {
		return p.strategy.PrepareForFirstSync(ctx, tx, now)
	})
	if err != nil {
		return fmt.Errorf("prepare for first sync: %w", err)
	}

	if err = p.localStore.FeatureStates().SetLastSyncTimestamp(ctx, p.feature, ""); err != nil {
		return fmt.Errorf("clear sync cursor: %w", err)
	}
	return nil
}

func (p *dataProvider) FetchChangedObjects(ctx context.Context, crypter crypto.Crypter) ([]models.SyncableRecord, error) {
	key, err := crypter.FetchSecretKey()
	if err != nil {
		return nil, fmt.Errorf("fetch secret key: %w", err)
	}

	tx, err := p.localStore.Begin(ctx, p.feature)
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Discard()

	records, err := p.strategy.CollectChanges(ctx, tx, crypter, key)
	if err != nil {
		return nil, fmt.Errorf("collect changed objects: %w", err)
	}

	p.logger.Debug().
		Str("feature", string(p.feature)).
		Int("count", len(records)).
		Msg("collected changed objects")
	return records, nil
}

func (p *dataProvider) HandleInitialSyncResponse(ctx context.Context, received []models.SyncableRecord, clientTimestamp time.Time, serverTimestamp string, crypter crypto.Crypter) error {
	// Key errors are fatal for the whole cycle and must surface before
	// any transaction is opened.
	key, err := crypter.FetchSecretKey()
	if err != nil {
		return fmt.Errorf("fetch secret key: %w", err)
	}

	opts := applyOptions{
		deduplicate:     true,
		clientTimestamp: clientTimestamp,
		crypter:         crypter,
		key:             key,
	}
	err = p.runReconciliation(ctx, func(tx store.Tx) error {
		_, applyErr := p.strategy.Apply(ctx, tx, received, opts)
		return applyErr
	})
	if err != nil {
		return err
	}

	return p.SetLastSyncTimestamp(ctx, serverTimestamp)
}

func (p *dataProvider) HandleSyncResponse(ctx context.Context, sent, received []models.SyncableRecord, clientTimestamp time.Time, serverTimestamp string, crypter crypto.Crypter) error {
	key, err := crypter.FetchSecretKey()
	if err != nil {
		return fmt.Errorf("fetch secret key: %w", err)
	}

	opts := applyOptions{
		deduplicate:     false,
		clientTimestamp: clientTimestamp,
		crypter:         crypter,
		key:             key,
	}
	err = p.runReconciliation(ctx, func(tx store.Tx) error {
		if _, applyErr := p.strategy.Apply(ctx, tx, received, opts); applyErr != nil {
			return applyErr
		}
		return p.reconciler.CleanUpSentItems(ctx, tx, sent, received, clientTimestamp)
	})
	if err != nil {
		return err
	}

	return p.SetLastSyncTimestamp(ctx, serverTimestamp)
}

// runReconciliation executes one reconciliation pass inside a fresh
// transaction, retrying from scratch whenever the store reports a merge
// conflict on save. Safe because every pass is idempotent given the same
// inputs. Any other storage error aborts the cycle and leaves the cursor
// unchanged, so the same batch is retried next cycle.
func (p *dataProvider) runReconciliation(ctx context.Context, pass func(tx store.Tx) error) error {
	for attempt := 1; ; attempt++ {
		tx, err := p.localStore.Begin(ctx, p.feature)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		err = pass(tx)
		if err == nil {
			err = tx.Save(ctx)
		}
		if err == nil {
			return nil
		}
		tx.Discard()

		if !errors.Is(err, store.ErrMergeConflict) {
			return err
		}
		if attempt >= p.maxAttempts {
			p.logger.Error().
				Str("feature", string(p.feature)).
				Int("attempts", attempt).
				Msg("reconciliation keeps conflicting, giving up")
			return fmt.Errorf("%w: %w", ErrReconciliationRetriesExceeded, err)
		}

		p.logger.Debug().
			Str("feature", string(p.feature)).
			Int("attempt", attempt).
			Msg("merge conflict on save, retrying reconciliation")
	}
}

func (p *dataProvider) LastSyncTimestamp(ctx context.Context) (string, error) {
	return p.localStore.FeatureStates().GetLastSyncTimestamp(ctx, p.feature)
}

func (p *dataProvider) SetLastSyncTimestamp(ctx context.Context, cursor string) error {
	return p.localStore.FeatureStates().SetLastSyncTimestamp(ctx, p.feature, cursor)
}

func (p *dataProvider) HandleSyncError(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()

	p.logger.Error().
		Err(err).
		Str("feature", string(p.feature)).
		Msg("sync cycle failed")
}

// LastError returns the most recently reported sync error, if any.
func (p *dataProvider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
