package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/models"
)

// sqliteStore is the persistent LocalStore backed by a single sqlite file.
type sqliteStore struct {
	db     *DB
	logger *logger.Logger
}

// NewSQLiteStore wraps an open connection as a LocalStore.
func NewSQLiteStore(db *DB, log *logger.Logger) LocalStore {
	return &sqliteStore{db: db, logger: log}
}

func (s *sqliteStore) Begin(ctx context.Context, feature models.Feature) (Tx, error) {
	if _, err := s.db.ExecContext(ctx, initFeatureRevision, string(feature)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}

	var revision int64
	if err = tx.QueryRowContext(ctx, getFeatureRevision, string(feature)).Scan(&revision); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return &sqliteTx{
		tx:       tx,
		feature:  feature,
		revision: revision,
		logger:   s.logger,
	}, nil
}

func (s *sqliteStore) FeatureStates() FeatureStateRepository {
	return &sqliteFeatureStates{db: s.db}
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// sqliteFeatureStates persists cursors on the connection directly, outside
// reconciliation transactions.
type sqliteFeatureStates struct {
	db *DB
}

func (r *sqliteFeatureStates) GetLastSyncTimestamp(ctx context.Context, feature models.Feature) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx, getFeatureState, string(feature)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return cursor, nil
}

func (r *sqliteFeatureStates) SetLastSyncTimestamp(ctx context.Context, feature models.Feature, cursor string) error {
	if _, err := r.db.ExecContext(ctx, upsertFeatureState, string(feature), cursor); err != nil {
		return fmt.Errorf("save feature state: %w", err)
	}
	return nil
}

// sqliteTx wraps one sql.Tx plus the feature revision snapshot taken at
// Begin. Save performs the optimistic revision check before committing.
type sqliteTx struct {
	tx       *sql.Tx
	feature  models.Feature
	revision int64
	done     bool
	logger   *logger.Logger
}

func (t *sqliteTx) Settings() SettingsRepository   { return &sqliteSettings{tx: t} }
func (t *sqliteTx) Bookmarks() BookmarksRepository { return &sqliteBookmarks{tx: t} }
func (t *sqliteTx) Tabs() TabsRepository           { return &sqliteTabs{tx: t} }
func (t *sqliteTx) Metadata() MetadataRepository   { return &sqliteMetadata{tx: t} }

func (t *sqliteTx) Save(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	res, err := t.tx.ExecContext(ctx, advanceFeatureRevision, string(t.feature), t.revision)
	if err != nil {
		_ = t.tx.Rollback()
		if isSQLiteBusy(err) {
			return ErrMergeConflict
		}
		return fmt.Errorf("advance feature revision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = t.tx.Rollback()
		return fmt.Errorf("advance feature revision: %w", err)
	}
	if affected == 0 {
		// Another writer committed since Begin.
		_ = t.tx.Rollback()
		return ErrMergeConflict
	}

	if err = t.tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			return ErrMergeConflict
		}
		return fmt.Errorf("%w: %w", ErrCommittingTransaction, err)
	}
	return nil
}

func (t *sqliteTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
}

// isSQLiteBusy reports whether err is sqlite's lock contention signal, which
// the engine treats the same as an optimistic merge conflict.
func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

type sqliteSettings struct {
	tx *sqliteTx
}

func (r *sqliteSettings) Get(ctx context.Context, key models.SettingKey) (models.Setting, error) {
	if r.tx.done {
		return models.Setting{}, ErrTxDone
	}

	var (
		k     string
		value sql.NullString
	)
	err := r.tx.tx.QueryRowContext(ctx, getSetting, string(key)).Scan(&k, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Setting{}, ErrRecordNotFound
	}
	if err != nil {
		return models.Setting{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return settingFromRow(k, value), nil
}

func (r *sqliteSettings) All(ctx context.Context) ([]models.Setting, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}

	rows, err := r.tx.tx.QueryContext(ctx, getAllSettings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.Setting
	for rows.Next() {
		var (
			k     string
			value sql.NullString
		)
		if err = rows.Scan(&k, &value); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		out = append(out, settingFromRow(k, value))
	}
	return out, rows.Err()
}

func (r *sqliteSettings) Upsert(ctx context.Context, setting models.Setting) error {
	return r.SetValue(ctx, setting.Key, setting.Value)
}

func (r *sqliteSettings) SetValue(ctx context.Context, key models.SettingKey, value *string) error {
	if r.tx.done {
		return ErrTxDone
	}

	var v sql.NullString
	if value != nil {
		v = sql.NullString{String: *value, Valid: true}
	}
	if _, err := r.tx.tx.ExecContext(ctx, upsertSetting, string(key), v); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func settingFromRow(key string, value sql.NullString) models.Setting {
	s := models.Setting{Key: models.SettingKey(key)}
	if value.Valid {
		v := value.String
		s.Value = &v
	}
	return s
}

type sqliteBookmarks struct {
	tx *sqliteTx
}

func (r *sqliteBookmarks) Tree(ctx context.Context) (*models.BookmarkTree, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}

	rows, err := r.tx.tx.QueryContext(ctx, getAllBookmarks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	tree := models.NewBookmarkTree()
	type placed struct {
		parent   string
		position int64
		id       string
	}
	var placements []placed

	for rows.Next() {
		var (
			node       models.BookmarkNode
			isFolder   int64
			position   int64
			modifiedAt sql.NullTime
			pending    int64
		)
		if err = rows.Scan(&node.ID, &node.Title, &node.URL, &isFolder, &node.ParentID, &position, &modifiedAt, &pending); err != nil {
			return nil, fmt.Errorf("scan bookmark row: %w", err)
		}
		node.IsFolder = isFolder != 0
		node.PendingDeletion = pending != 0
		if modifiedAt.Valid {
			t := modifiedAt.Time
			node.ModifiedAt = &t
		}
		if existing := tree.Node(node.ID); existing != nil && models.IsRootID(node.ID) {
			// Roots are pre-seeded; carry persisted fields over.
			existing.Title = node.Title
			existing.ModifiedAt = node.ModifiedAt
		} else {
			tree.Upsert(&models.BookmarkNode{
				ID:              node.ID,
				Title:           node.Title,
				URL:             node.URL,
				IsFolder:        node.IsFolder,
				ModifiedAt:      node.ModifiedAt,
				PendingDeletion: node.PendingDeletion,
			})
		}
		if node.ParentID != "" {
			placements = append(placements, placed{parent: node.ParentID, position: position, id: node.ID})
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(placements, func(i, j int) bool {
		if placements[i].parent != placements[j].parent {
			return placements[i].parent < placements[j].parent
		}
		return placements[i].position < placements[j].position
	})
	for _, p := range placements {
		tree.Attach(p.parent, p.id)
	}

	favRows, err := r.tx.tx.QueryContext(ctx, getAllFavorites)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer favRows.Close()
	for favRows.Next() {
		var rootID, memberID string
		if err = favRows.Scan(&rootID, &memberID); err != nil {
			return nil, fmt.Errorf("scan favorites row: %w", err)
		}
		tree.AddFavorite(rootID, memberID)
	}
	if err = favRows.Err(); err != nil {
		return nil, err
	}

	return tree, nil
}

func (r *sqliteBookmarks) SaveTree(ctx context.Context, tree *models.BookmarkTree) error {
	if r.tx.done {
		return ErrTxDone
	}

	if _, err := r.tx.tx.ExecContext(ctx, deleteAllBookmarks); err != nil {
		return fmt.Errorf("clear bookmarks: %w", err)
	}

	if _, err := r.tx.tx.ExecContext(ctx, deleteAllFavorites); err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}

	// Positions are the index of each node in its parent's children list.
	// Favorites roots are excluded: their children are membership lists
	// persisted in the favorites table.
	positions := make(map[string]int)
	for _, node := range tree.Nodes {
		if models.IsFavoritesRootID(node.ID) {
			continue
		}
		for i, child := range node.Children {
			positions[child] = i
		}
	}

	for _, rootID := range models.FavoritesRootIDs {
		for i, memberID := range tree.Favorites(rootID) {
			if _, err := r.tx.tx.ExecContext(ctx, insertFavorite, rootID, i, memberID); err != nil {
				return fmt.Errorf("insert favorite %s: %w", memberID, err)
			}
		}
	}

	for _, node := range tree.Nodes {
		var modifiedAt any
		if node.ModifiedAt != nil {
			modifiedAt = *node.ModifiedAt
		}
		_, err := r.tx.tx.ExecContext(ctx, insertBookmark,
			node.ID,
			node.Title,
			node.URL,
			boolToInt(node.IsFolder),
			node.ParentID,
			positions[node.ID],
			modifiedAt,
			boolToInt(node.PendingDeletion),
		)
		if err != nil {
			return fmt.Errorf("insert bookmark %s: %w", node.ID, err)
		}
	}
	return nil
}

type sqliteTabs struct {
	tx *sqliteTx
}

func (r *sqliteTabs) Get(ctx context.Context, deviceID string) (*models.DeviceTabs, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}

	row := r.tx.tx.QueryRowContext(ctx, getDeviceTabs, deviceID)
	tabs, err := scanDeviceTabs(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return tabs, err
}

func (r *sqliteTabs) All(ctx context.Context) ([]*models.DeviceTabs, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}

	rows, err := r.tx.tx.QueryContext(ctx, getAllDeviceTabs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []*models.DeviceTabs
	for rows.Next() {
		tabs, err := scanDeviceTabs(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, tabs)
	}
	return out, rows.Err()
}

func (r *sqliteTabs) Upsert(ctx context.Context, tabs *models.DeviceTabs) error {
	if r.tx.done {
		return ErrTxDone
	}

	encoded, err := json.Marshal(tabs.Tabs)
	if err != nil {
		return fmt.Errorf("encode tabs for device %s: %w", tabs.DeviceID, err)
	}
	var modifiedAt any
	if tabs.ModifiedAt != nil {
		modifiedAt = *tabs.ModifiedAt
	}
	if _, err = r.tx.tx.ExecContext(ctx, upsertDeviceTabs,
		tabs.DeviceID, tabs.DeviceName, string(encoded), modifiedAt, boolToInt(tabs.Deleted),
	); err != nil {
		return fmt.Errorf("upsert tabs for device %s: %w", tabs.DeviceID, err)
	}
	return nil
}

func (r *sqliteTabs) SoftDelete(ctx context.Context, deviceID string) error {
	if r.tx.done {
		return ErrTxDone
	}
	if _, err := r.tx.tx.ExecContext(ctx, softDeleteDeviceTabs, deviceID); err != nil {
		return fmt.Errorf("soft delete tabs for device %s: %w", deviceID, err)
	}
	return nil
}

func scanDeviceTabs(scan func(dest ...any) error) (*models.DeviceTabs, error) {
	var (
		tabs       models.DeviceTabs
		encoded    string
		modifiedAt sql.NullTime
		deleted    int64
	)
	if err := scan(&tabs.DeviceID, &tabs.DeviceName, &encoded, &modifiedAt, &deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &tabs.Tabs); err != nil {
		return nil, fmt.Errorf("decode tabs for device %s: %w", tabs.DeviceID, err)
	}
	if modifiedAt.Valid {
		t := modifiedAt.Time
		tabs.ModifiedAt = &t
	}
	tabs.Deleted = deleted != 0
	return &tabs, nil
}

type sqliteMetadata struct {
	tx *sqliteTx
}

func (r *sqliteMetadata) Get(ctx context.Context, key string) (models.SyncMetadata, error) {
	if r.tx.done {
		return models.SyncMetadata{}, ErrTxDone
	}

	row := r.tx.tx.QueryRowContext(ctx, getSyncMetadata, string(r.tx.feature), key)
	m, err := scanSyncMetadata(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncMetadata{}, ErrRecordNotFound
	}
	return m, err
}

func (r *sqliteMetadata) GetBatch(ctx context.Context, keys []string) (map[string]models.SyncMetadata, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	out := make(map[string]models.SyncMetadata, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query, args, err := sq.Select("key", "last_modified").
		From("sync_metadata").
		Where(sq.Eq{"feature": string(r.tx.feature), "key": keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanSyncMetadata(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[m.Key] = m
	}
	return out, rows.Err()
}

func (r *sqliteMetadata) All(ctx context.Context) ([]models.SyncMetadata, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}

	rows, err := r.tx.tx.QueryContext(ctx, getAllSyncMetadata, string(r.tx.feature))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.SyncMetadata
	for rows.Next() {
		m, err := scanSyncMetadata(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *sqliteMetadata) SetLastModified(ctx context.Context, key string, at *time.Time) error {
	if r.tx.done {
		return ErrTxDone
	}

	var ts any
	if at != nil {
		ts = *at
	}
	if _, err := r.tx.tx.ExecContext(ctx, upsertSyncMetadata, string(r.tx.feature), key, ts); err != nil {
		return fmt.Errorf("upsert sync metadata %s: %w", key, err)
	}
	return nil
}

func scanSyncMetadata(scan func(dest ...any) error) (models.SyncMetadata, error) {
	var (
		m            models.SyncMetadata
		lastModified sql.NullTime
	)
	if err := scan(&m.Key, &lastModified); err != nil {
		return models.SyncMetadata{}, err
	}
	if lastModified.Valid {
		t := lastModified.Time
		m.LastModified = &t
	}
	return m, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
