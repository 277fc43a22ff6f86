package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// contendedStore injects a competing commit between Begin and Save for the
// first `remaining` transactions handed out, so the provider's Save hits a
// merge conflict exactly that many times.
type contendedStore struct {
	store.LocalStore
	remaining int
}

func (c *contendedStore) Begin(ctx context.Context, feature models.Feature) (store.Tx, error) {
	tx, err := c.LocalStore.Begin(ctx, feature)
	if err != nil {
		return nil, err
	}
	if c.remaining > 0 {
		c.remaining--
		competing, err := c.LocalStore.Begin(ctx, feature)
		if err != nil {
			return nil, err
		}
		if err = competing.Save(ctx); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func getSetting(t *testing.T, s store.LocalStore, key models.SettingKey) models.Setting {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx, models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()
	setting, err := tx.Settings().Get(ctx, key)
	require.NoError(t, err)
	return setting
}

// ── Reconciliation retry ─────────────────────────────────────────────────────

func TestDataProvider_HandleSyncResponse_RetriesAfterMergeConflict(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	contended := &contendedStore{LocalStore: base, remaining: 1}
	provider := NewSettingsProvider(contended, testLogger())

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	// First pass loses the revision race, second pass succeeds; callers
	// never see the conflict.
	err := provider.HandleSyncResponse(ctx, nil, received, time.Now().UTC(), "ts-1", &fakeCrypter{})
	require.NoError(t, err)

	setting := getSetting(t, base, models.SettingHomePageURL)
	require.NotNil(t, setting.Value)
	assert.Equal(t, "https://example.com", *setting.Value)

	cursor, err := provider.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ts-1", cursor)
}

func TestDataProvider_HandleSyncResponse_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	contended := &contendedStore{LocalStore: base, remaining: maxReconcileAttempts + 1}
	provider := NewSettingsProvider(contended, testLogger())

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	err := provider.HandleSyncResponse(ctx, nil, received, time.Now().UTC(), "ts-1", &fakeCrypter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconciliationRetriesExceeded)
	assert.ErrorIs(t, err, store.ErrMergeConflict)

	// The cursor must not advance past an unapplied batch.
	cursor, cursorErr := provider.LastSyncTimestamp(ctx)
	require.NoError(t, cursorErr)
	assert.Empty(t, cursor)
}

// ── Key failures ─────────────────────────────────────────────────────────────

func TestDataProvider_HandleSyncResponse_MissingKeyIsFatal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	provider := NewSettingsProvider(s, testLogger())

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	err := provider.HandleSyncResponse(ctx, nil, received, time.Now().UTC(), "ts-1", &fakeCrypter{keyErr: crypto.ErrNoSecretKey})
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrNoSecretKey)

	// Nothing was applied and the cursor did not move.
	tx, err := s.Begin(ctx, models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()
	_, err = tx.Settings().Get(ctx, models.SettingHomePageURL)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	cursor, err := provider.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

// ── First sync lifecycle ─────────────────────────────────────────────────────

func TestDataProvider_PrepareForFirstSync_MarksAllAndClearsCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	provider := NewSettingsProvider(s, testLogger())

	seedStore(t, s, models.FeatureSettings, func(tx store.Tx) {
		require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("https://example.com")))
	})
	require.NoError(t, provider.SetLastSyncTimestamp(ctx, "stale-cursor"))

	require.NoError(t, provider.PrepareForFirstSync(ctx))

	cursor, err := provider.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	records, err := provider.FetchChangedObjects(ctx, &fakeCrypter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(models.SettingHomePageURL), records[0].ID)
}

func TestDataProvider_HandleInitialSyncResponse_AppliesAndSetsCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	provider := NewSettingsProvider(s, testLogger())

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	require.NoError(t, provider.HandleInitialSyncResponse(ctx, received, time.Now().UTC(), "ts-initial", &fakeCrypter{}))

	setting := getSetting(t, s, models.SettingHomePageURL)
	require.NotNil(t, setting.Value)
	assert.Equal(t, "https://example.com", *setting.Value)

	cursor, err := provider.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ts-initial", cursor)
}

// ── Idempotence ──────────────────────────────────────────────────────────────

func TestDataProvider_HandleSyncResponse_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	provider := NewSettingsProvider(s, testLogger())

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
		tombstone(string(models.SettingFireproofDomains)),
	}

	clientTS := time.Now().UTC()
	require.NoError(t, provider.HandleSyncResponse(ctx, nil, received, clientTS, "ts-1", &fakeCrypter{}))
	require.NoError(t, provider.HandleSyncResponse(ctx, nil, received, clientTS, "ts-1", &fakeCrypter{}))

	setting := getSetting(t, s, models.SettingHomePageURL)
	require.NotNil(t, setting.Value)
	assert.Equal(t, "https://example.com", *setting.Value)
	assert.True(t, getSetting(t, s, models.SettingFireproofDomains).IsDeleted())
}

// ── FetchChangedObjects ──────────────────────────────────────────────────────

func TestDataProvider_FetchChangedObjects_IsPureRead(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	provider := NewSettingsProvider(s, testLogger())

	now := time.Now().UTC()
	seedStore(t, s, models.FeatureSettings, func(tx store.Tx) {
		require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("https://example.com")))
		require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingHomePageURL), &now))
	})

	first, err := provider.FetchChangedObjects(ctx, &fakeCrypter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Collecting does not acknowledge anything; a failed upload retries
	// with the same batch.
	second, err := provider.FetchChangedObjects(ctx, &fakeCrypter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// ── Error reporting ──────────────────────────────────────────────────────────

func TestDataProvider_HandleSyncError_RecordsLastError(t *testing.T) {
	provider := NewSettingsProvider(store.NewMemoryStore(), testLogger()).(*dataProvider)

	assert.NoError(t, provider.LastError())

	provider.HandleSyncError(assert.AnError)
	assert.ErrorIs(t, provider.LastError(), assert.AnError)

	// A nil report does not erase the recorded failure.
	provider.HandleSyncError(nil)
	assert.ErrorIs(t, provider.LastError(), assert.AnError)
}
