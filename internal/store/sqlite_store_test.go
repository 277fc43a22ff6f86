package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/models"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &DB{DB: db, logger: logger.Nop()}, mock
}

// expectBegin sets up the Begin handshake: revision row init, transaction
// start, revision snapshot read.
func expectBegin(mock sqlmock.Sqlmock, feature models.Feature, revision int64) {
	mock.ExpectExec(regexp.QuoteMeta(initFeatureRevision)).
		WithArgs(string(feature)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getFeatureRevision)).
		WithArgs(string(feature)).
		WillReturnRows(sqlmock.NewRows([]string{"rev"}).AddRow(revision))
}

// ── Begin / Save ─────────────────────────────────────────────────────────────

func TestSQLiteStore_BeginSnapshotsRevision(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 7)
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	tx.Discard()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteTx_Save_AdvancesRevisionAndCommits(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 7)
	mock.ExpectExec(regexp.QuoteMeta(advanceFeatureRevision)).
		WithArgs(string(models.FeatureSettings), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	require.NoError(t, tx.Save(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteTx_Save_MergeConflictWhenRevisionMoved(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 7)
	// Zero affected rows: another writer advanced the revision.
	mock.ExpectExec(regexp.QuoteMeta(advanceFeatureRevision)).
		WithArgs(string(models.FeatureSettings), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Save(context.Background()), ErrMergeConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteTx_SaveAfterDiscard(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	tx.Discard()
	assert.ErrorIs(t, tx.Save(context.Background()), ErrTxDone)
}

// ── Settings ─────────────────────────────────────────────────────────────────

func TestSQLiteSettings_Get(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)
	mock.ExpectQuery(regexp.QuoteMeta(getSetting)).
		WithArgs(string(models.SettingHomePageURL)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow(string(models.SettingHomePageURL), "https://example.com"))

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	setting, err := tx.Settings().Get(context.Background(), models.SettingHomePageURL)
	require.NoError(t, err)
	require.NotNil(t, setting.Value)
	assert.Equal(t, "https://example.com", *setting.Value)
}

func TestSQLiteSettings_GetSoftDeletedRow(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)
	mock.ExpectQuery(regexp.QuoteMeta(getSetting)).
		WithArgs(string(models.SettingHomePageURL)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow(string(models.SettingHomePageURL), nil))

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	setting, err := tx.Settings().Get(context.Background(), models.SettingHomePageURL)
	require.NoError(t, err)
	assert.True(t, setting.IsDeleted())
}

func TestSQLiteSettings_GetMissing(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)
	mock.ExpectQuery(regexp.QuoteMeta(getSetting)).
		WithArgs(string(models.SettingHomePageURL)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}))

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	_, err = tx.Settings().Get(context.Background(), models.SettingHomePageURL)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLiteSettings_SetValueTombstone(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)
	mock.ExpectExec(regexp.QuoteMeta(upsertSetting)).
		WithArgs(string(models.SettingHomePageURL), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	require.NoError(t, tx.Settings().SetValue(context.Background(), models.SettingHomePageURL, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Bookmarks ────────────────────────────────────────────────────────────────

var bookmarkColumns = []string{
	"id", "title", "url", "is_folder", "parent_id", "position", "modified_at", "pending_deletion",
}

func TestSQLiteBookmarks_TreeAssembly(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureBookmarks, 0)
	mock.ExpectQuery(regexp.QuoteMeta(getAllBookmarks)).
		WillReturnRows(sqlmock.NewRows(bookmarkColumns).
			AddRow("b2", "Two", "https://two.example", 0, "f1", 1, nil, 0).
			AddRow("b1", "One", "https://one.example", 0, "f1", 0, nil, 0).
			AddRow("f1", "Folder", "", 1, models.BookmarksRootID, 0, nil, 0))
	mock.ExpectQuery(regexp.QuoteMeta(getAllFavorites)).
		WillReturnRows(sqlmock.NewRows([]string{"root_id", "member_id"}).
			AddRow(models.FavoritesRootID, "b1"))

	tx, err := s.Begin(context.Background(), models.FeatureBookmarks)
	require.NoError(t, err)
	defer tx.Discard()

	tree, err := tx.Bookmarks().Tree(context.Background())
	require.NoError(t, err)

	// Children are ordered by persisted position regardless of row order.
	folder := tree.Node("f1")
	require.NotNil(t, folder)
	assert.Equal(t, []string{"b1", "b2"}, folder.Children)
	assert.Equal(t, models.BookmarksRootID, folder.ParentID)
	assert.Equal(t, []string{"b1"}, tree.Favorites(models.FavoritesRootID))
}

// ── Metadata ─────────────────────────────────────────────────────────────────

func TestSQLiteMetadata_GetBatch(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	now := time.Now().UTC()
	expectBegin(mock, models.FeatureSettings, 0)
	// squirrel renders the map predicate with sorted column names:
	// feature first, then the key IN list.
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT key, last_modified FROM sync_metadata WHERE feature = ? AND key IN (?,?)",
	)).
		WithArgs(string(models.FeatureSettings), "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"key", "last_modified"}).
			AddRow("a", now).
			AddRow("b", nil))

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	batch, err := tx.Metadata().GetBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NotNil(t, batch["a"].LastModified)
	assert.True(t, batch["a"].LastModified.Equal(now))
	assert.Nil(t, batch["b"].LastModified)
}

func TestSQLiteMetadata_GetBatchEmptyKeys(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureSettings, 0)

	tx, err := s.Begin(context.Background(), models.FeatureSettings)
	require.NoError(t, err)
	defer tx.Discard()

	batch, err := tx.Metadata().GetBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Tabs ─────────────────────────────────────────────────────────────────────

func TestSQLiteTabs_SoftDelete(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	expectBegin(mock, models.FeatureTabs, 0)
	mock.ExpectExec(regexp.QuoteMeta(softDeleteDeviceTabs)).
		WithArgs("device-old").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := s.Begin(context.Background(), models.FeatureTabs)
	require.NoError(t, err)
	defer tx.Discard()

	require.NoError(t, tx.Tabs().SoftDelete(context.Background(), "device-old"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Feature states ───────────────────────────────────────────────────────────

func TestSQLiteFeatureStates_MissingCursorIsEmpty(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	mock.ExpectQuery(regexp.QuoteMeta(getFeatureState)).
		WithArgs(string(models.FeatureBookmarks)).
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_timestamp"}))

	cursor, err := s.FeatureStates().GetLastSyncTimestamp(context.Background(), models.FeatureBookmarks)
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestSQLiteFeatureStates_RoundTrip(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewSQLiteStore(db, logger.Nop())

	mock.ExpectExec(regexp.QuoteMeta(upsertFeatureState)).
		WithArgs(string(models.FeatureBookmarks), "ts-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(getFeatureState)).
		WithArgs(string(models.FeatureBookmarks)).
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_timestamp"}).AddRow("ts-9"))

	require.NoError(t, s.FeatureStates().SetLastSyncTimestamp(context.Background(), models.FeatureBookmarks, "ts-9"))
	cursor, err := s.FeatureStates().GetLastSyncTimestamp(context.Background(), models.FeatureBookmarks)
	require.NoError(t, err)
	assert.Equal(t, "ts-9", cursor)

	assert.NoError(t, mock.ExpectationsWereMet())
}
