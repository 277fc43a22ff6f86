package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

func newSettingsFixture(t *testing.T) (store.LocalStore, store.Tx, *settingsStrategy) {
	t.Helper()
	s := store.NewMemoryStore()
	return s, beginTx(t, s, models.FeatureSettings), newSettingsStrategy(testLogger())
}

// ── Apply ────────────────────────────────────────────────────────────────────

func TestSettingsStrategy_Apply_NewValue(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)
	clientTS := time.Now().UTC()

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, clientTS))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.applied)
	assert.Equal(t, 0, stats.skipped)

	setting, err := tx.Settings().Get(ctx, models.SettingHomePageURL)
	require.NoError(t, err)
	require.NotNil(t, setting.Value)
	assert.Equal(t, "https://example.com", *setting.Value)

	// The accepted remote value needs no further upload.
	m, err := tx.Metadata().Get(ctx, string(models.SettingHomePageURL))
	require.NoError(t, err)
	assert.Nil(t, m.LastModified)
}

func TestSettingsStrategy_Apply_LocalEditAfterSnapshotWins(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)
	clientTS := time.Now().UTC()

	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("local")))
	localEdit := clientTS.Add(time.Second)
	require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingHomePageURL), &localEdit))

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("remote")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, clientTS))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.skipped)

	setting, err := tx.Settings().Get(ctx, models.SettingHomePageURL)
	require.NoError(t, err)
	assert.Equal(t, "local", *setting.Value)

	// The losing remote record must not clear the pending upload marker.
	m, err := tx.Metadata().Get(ctx, string(models.SettingHomePageURL))
	require.NoError(t, err)
	require.NotNil(t, m.LastModified)
	assert.True(t, m.LastModified.Equal(localEdit))
}

func TestSettingsStrategy_Apply_EqualTimestampRemoteWins(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)
	clientTS := time.Now().UTC()

	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("local")))
	require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingHomePageURL), &clientTS))

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("remote")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, clientTS))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.applied)

	setting, err := tx.Settings().Get(ctx, models.SettingHomePageURL)
	require.NoError(t, err)
	assert.Equal(t, "remote", *setting.Value)
}

func TestSettingsStrategy_Apply_DeduplicateIgnoresLocalRecency(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)
	clientTS := time.Now().UTC()

	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("local")))
	localEdit := clientTS.Add(time.Hour)
	require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingHomePageURL), &localEdit))

	received := []models.SyncableRecord{
		settingRecord(t, models.SettingHomePageURL, strPtr("remote")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(true, clientTS))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.applied)

	setting, err := tx.Settings().Get(ctx, models.SettingHomePageURL)
	require.NoError(t, err)
	assert.Equal(t, "remote", *setting.Value)
}

func TestSettingsStrategy_Apply_TombstoneSoftDeletes(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)

	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingFireproofDomains, strPtr("example.com")))

	received := []models.SyncableRecord{tombstone(string(models.SettingFireproofDomains))}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.applied)

	// The row survives as a tombstone anchor; only the value is gone.
	setting, err := tx.Settings().Get(ctx, models.SettingFireproofDomains)
	require.NoError(t, err)
	assert.True(t, setting.IsDeleted())
}

func TestSettingsStrategy_Apply_UnknownKeySkipped(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)

	received := []models.SyncableRecord{
		{ID: "setting_from_the_future", Payload: []byte(`{}`)},
		settingRecord(t, models.SettingHomePageURL, strPtr("https://example.com")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.skipped)
	assert.Equal(t, 1, stats.applied)

	_, err = tx.Settings().Get(ctx, models.SettingKey("setting_from_the_future"))
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestSettingsStrategy_Apply_MalformedRecordSkippedRestApplies(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)

	received := []models.SyncableRecord{
		{ID: string(models.SettingHomePageURL), Payload: []byte(blobTooShort)},
		settingRecord(t, models.SettingDefaultSearchSuggestions, strPtr("on")),
	}

	stats, err := strat.Apply(ctx, tx, received, testOpts(false, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.skipped)
	assert.Equal(t, 1, stats.applied)

	setting, err := tx.Settings().Get(ctx, models.SettingDefaultSearchSuggestions)
	require.NoError(t, err)
	assert.Equal(t, "on", *setting.Value)
}

func TestSettingsStrategy_Apply_UndecryptableRecordFailsCycle(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)

	received := []models.SyncableRecord{
		{ID: string(models.SettingHomePageURL), Payload: []byte(blobCorrupted)},
	}

	_, err := strat.Apply(ctx, tx, received, testOpts(false, time.Now().UTC()))
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	assert.False(t, errors.Is(err, crypto.ErrCiphertextTooShort))
}

// ── CollectChanges / PrepareForFirstSync ─────────────────────────────────────

func TestSettingsStrategy_CollectChanges(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)
	now := time.Now().UTC()

	// Dirty value, dirty soft-deletion, clean value.
	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("https://example.com")))
	require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingHomePageURL), &now))
	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingFireproofDomains, nil))
	require.NoError(t, tx.Metadata().SetLastModified(ctx, string(models.SettingFireproofDomains), &now))
	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingDefaultSearchSuggestions, strPtr("on")))

	crypter := &fakeCrypter{}
	records, err := strat.CollectChanges(ctx, tx, crypter, []byte("test-secret-key"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := make(map[string]models.SyncableRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	valued := byID[string(models.SettingHomePageURL)]
	assert.False(t, valued.Deleted)
	assert.NotEmpty(t, valued.Payload)
	require.NotNil(t, valued.ClientLastModified)
	assert.True(t, valued.ClientLastModified.Equal(now))

	deleted := byID[string(models.SettingFireproofDomains)]
	assert.True(t, deleted.Deleted)
	assert.Nil(t, deleted.Payload)
}

func TestSettingsStrategy_PrepareForFirstSync_MarksEverything(t *testing.T) {
	ctx := context.Background()
	_, tx, strat := newSettingsFixture(t)

	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingHomePageURL, strPtr("https://example.com")))
	require.NoError(t, tx.Settings().SetValue(ctx, models.SettingDefaultSearchSuggestions, strPtr("on")))

	now := time.Now().UTC()
	require.NoError(t, strat.PrepareForFirstSync(ctx, tx, now))

	for _, key := range []models.SettingKey{models.SettingHomePageURL, models.SettingDefaultSearchSuggestions} {
		m, err := tx.Metadata().Get(ctx, string(key))
		require.NoError(t, err)
		require.NotNil(t, m.LastModified)
		assert.True(t, m.LastModified.Equal(now))
	}
}
