package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MKhiriev/go-browser-sync/models"
)

// memoryStore is a map-backed LocalStore with optional JSON file
// persistence. It backs `:memory:` runs and the engine test suite.
// Transactions take a deep copy of the state on Begin; Save publishes the
// committing feature's slice of it back under an optimistic per-feature
// revision check.
type memoryStore struct {
	path string

	mu        sync.Mutex
	settings  map[models.SettingKey]models.Setting
	bookmarks *models.BookmarkTree
	tabs      map[string]*models.DeviceTabs
	metadata  map[models.Feature]map[string]models.SyncMetadata
	cursors   map[models.Feature]string
	revisions map[models.Feature]uint64
}

// memoryPersistedState is the on-disk JSON shape of a memoryStore.
type memoryPersistedState struct {
	Settings  map[models.SettingKey]models.Setting              `json:"settings,omitempty"`
	Bookmarks *models.BookmarkTree                              `json:"bookmarks,omitempty"`
	Tabs      map[string]*models.DeviceTabs                     `json:"tabs,omitempty"`
	Metadata  map[models.Feature]map[string]models.SyncMetadata `json:"metadata,omitempty"`
	Cursors   map[models.Feature]string                         `json:"cursors,omitempty"`
}

// NewMemoryStore returns an empty in-memory LocalStore.
func NewMemoryStore() LocalStore {
	s := newMemoryStore("")
	return s
}

// NewFileStore returns a LocalStore persisted as a JSON file at path. The
// file is created on first Save; a missing file yields an empty store.
func NewFileStore(path string) (LocalStore, error) {
	s := newMemoryStore(path)
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newMemoryStore(path string) *memoryStore {
	return &memoryStore{
		path:      path,
		settings:  make(map[models.SettingKey]models.Setting),
		bookmarks: models.NewBookmarkTree(),
		tabs:      make(map[string]*models.DeviceTabs),
		metadata:  make(map[models.Feature]map[string]models.SyncMetadata),
		cursors:   make(map[models.Feature]string),
		revisions: make(map[models.Feature]uint64),
	}
}

func (s *memoryStore) load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read local store file: %w", err)
	}

	var st memoryPersistedState
	if err = json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode local store file: %w", err)
	}

	if st.Settings != nil {
		s.settings = st.Settings
	}
	if st.Bookmarks != nil {
		s.bookmarks = st.Bookmarks
	}
	if st.Tabs != nil {
		s.tabs = st.Tabs
	}
	if st.Metadata != nil {
		s.metadata = st.Metadata
	}
	if st.Cursors != nil {
		s.cursors = st.Cursors
	}
	return nil
}

// persist writes the current state to disk. Caller holds s.mu.
func (s *memoryStore) persist() error {
	if s.path == "" {
		return nil
	}

	st := memoryPersistedState{
		Settings:  s.settings,
		Bookmarks: s.bookmarks,
		Tabs:      s.tabs,
		Metadata:  s.metadata,
		Cursors:   s.cursors,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local store state: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write local store file: %w", err)
	}
	return nil
}

func (s *memoryStore) Begin(_ context.Context, feature models.Feature) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:     s,
		feature:   feature,
		revision:  s.revisions[feature],
		settings:  make(map[models.SettingKey]models.Setting, len(s.settings)),
		bookmarks: s.bookmarks.Clone(),
		tabs:      make(map[string]*models.DeviceTabs, len(s.tabs)),
		metadata:  make(map[string]models.SyncMetadata),
	}
	for k, v := range s.settings {
		tx.settings[k] = v
	}
	for id, dt := range s.tabs {
		tx.tabs[id] = dt.Clone()
	}
	for k, m := range s.metadata[feature] {
		tx.metadata[k] = m
	}
	return tx, nil
}

func (s *memoryStore) FeatureStates() FeatureStateRepository {
	return &memoryFeatureStates{store: s}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// memoryFeatureStates persists cursors directly on the store, outside any
// transaction.
type memoryFeatureStates struct {
	store *memoryStore
}

func (r *memoryFeatureStates) GetLastSyncTimestamp(_ context.Context, feature models.Feature) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.cursors[feature], nil
}

func (r *memoryFeatureStates) SetLastSyncTimestamp(_ context.Context, feature models.Feature, cursor string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursors[feature] = cursor
	return r.store.persist()
}

// memoryTx is a copy-on-begin transaction over memoryStore.
type memoryTx struct {
	store    *memoryStore
	feature  models.Feature
	revision uint64
	done     bool

	settings  map[models.SettingKey]models.Setting
	bookmarks *models.BookmarkTree
	tabs      map[string]*models.DeviceTabs
	metadata  map[string]models.SyncMetadata
}

func (tx *memoryTx) Settings() SettingsRepository   { return &memorySettings{tx: tx} }
func (tx *memoryTx) Bookmarks() BookmarksRepository { return &memoryBookmarks{tx: tx} }
func (tx *memoryTx) Tabs() TabsRepository           { return &memoryTabs{tx: tx} }
func (tx *memoryTx) Metadata() MetadataRepository   { return &memoryMetadata{tx: tx} }

func (tx *memoryTx) Save(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revisions[tx.feature] != tx.revision {
		return ErrMergeConflict
	}

	// Only the committing feature's slice of state is published; commits
	// for other features that landed since Begin stay intact.
	switch tx.feature {
	case models.FeatureSettings:
		s.settings = tx.settings
	case models.FeatureBookmarks:
		s.bookmarks = tx.bookmarks
	case models.FeatureTabs:
		s.tabs = tx.tabs
	}
	s.metadata[tx.feature] = tx.metadata
	s.revisions[tx.feature]++
	tx.done = true

	return s.persist()
}

func (tx *memoryTx) Discard() {
	tx.done = true
}

type memorySettings struct {
	tx *memoryTx
}

func (r *memorySettings) Get(_ context.Context, key models.SettingKey) (models.Setting, error) {
	if r.tx.done {
		return models.Setting{}, ErrTxDone
	}
	setting, ok := r.tx.settings[key]
	if !ok {
		return models.Setting{}, ErrRecordNotFound
	}
	return setting, nil
}

func (r *memorySettings) All(_ context.Context) ([]models.Setting, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	out := make([]models.Setting, 0, len(r.tx.settings))
	for _, s := range r.tx.settings {
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySettings) Upsert(_ context.Context, setting models.Setting) error {
	if r.tx.done {
		return ErrTxDone
	}
	r.tx.settings[setting.Key] = setting
	return nil
}

func (r *memorySettings) SetValue(_ context.Context, key models.SettingKey, value *string) error {
	if r.tx.done {
		return ErrTxDone
	}
	setting := r.tx.settings[key]
	setting.Key = key
	setting.Value = value
	r.tx.settings[key] = setting
	return nil
}

type memoryBookmarks struct {
	tx *memoryTx
}

func (r *memoryBookmarks) Tree(_ context.Context) (*models.BookmarkTree, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	return r.tx.bookmarks, nil
}

func (r *memoryBookmarks) SaveTree(_ context.Context, tree *models.BookmarkTree) error {
	if r.tx.done {
		return ErrTxDone
	}
	r.tx.bookmarks = tree
	return nil
}

type memoryTabs struct {
	tx *memoryTx
}

func (r *memoryTabs) Get(_ context.Context, deviceID string) (*models.DeviceTabs, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	tabs, ok := r.tx.tabs[deviceID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return tabs, nil
}

func (r *memoryTabs) All(_ context.Context) ([]*models.DeviceTabs, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	out := make([]*models.DeviceTabs, 0, len(r.tx.tabs))
	for _, t := range r.tx.tabs {
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryTabs) Upsert(_ context.Context, tabs *models.DeviceTabs) error {
	if r.tx.done {
		return ErrTxDone
	}
	r.tx.tabs[tabs.DeviceID] = tabs
	return nil
}

func (r *memoryTabs) SoftDelete(_ context.Context, deviceID string) error {
	if r.tx.done {
		return ErrTxDone
	}
	tabs, ok := r.tx.tabs[deviceID]
	if !ok {
		r.tx.tabs[deviceID] = &models.DeviceTabs{DeviceID: deviceID, Deleted: true}
		return nil
	}
	tabs.Deleted = true
	tabs.Tabs = nil
	return nil
}

type memoryMetadata struct {
	tx *memoryTx
}

func (r *memoryMetadata) Get(_ context.Context, key string) (models.SyncMetadata, error) {
	if r.tx.done {
		return models.SyncMetadata{}, ErrTxDone
	}
	m, ok := r.tx.metadata[key]
	if !ok {
		return models.SyncMetadata{}, ErrRecordNotFound
	}
	return m, nil
}

func (r *memoryMetadata) GetBatch(_ context.Context, keys []string) (map[string]models.SyncMetadata, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	out := make(map[string]models.SyncMetadata, len(keys))
	for _, k := range keys {
		if m, ok := r.tx.metadata[k]; ok {
			out[k] = m
		}
	}
	return out, nil
}

func (r *memoryMetadata) All(_ context.Context) ([]models.SyncMetadata, error) {
	if r.tx.done {
		return nil, ErrTxDone
	}
	out := make([]models.SyncMetadata, 0, len(r.tx.metadata))
	for _, m := range r.tx.metadata {
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryMetadata) SetLastModified(_ context.Context, key string, at *time.Time) error {
	if r.tx.done {
		return ErrTxDone
	}
	var ts *time.Time
	if at != nil {
		t := *at
		ts = &t
	}
	r.tx.metadata[key] = models.SyncMetadata{Key: key, LastModified: ts}
	return nil
}
