package store

const (
	getSetting = `
		SELECT key, value
		FROM settings
		WHERE key = ?;`

	getAllSettings = `
		SELECT key, value
		FROM settings;`

	upsertSetting = `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value;`

	getAllBookmarks = `
		SELECT
			id,
			title,
			url,
			is_folder,
			parent_id,
			position,
			modified_at,
			pending_deletion
		FROM bookmarks
		ORDER BY parent_id, position;`

	deleteAllBookmarks = `
		DELETE FROM bookmarks;`

	getAllFavorites = `
		SELECT root_id, member_id
		FROM favorites
		ORDER BY root_id, position;`

	deleteAllFavorites = `
		DELETE FROM favorites;`

	insertFavorite = `
		INSERT INTO favorites (root_id, position, member_id)
		VALUES (?, ?, ?);`

	insertBookmark = `
		INSERT INTO bookmarks (
			id,
			title,
			url,
			is_folder,
			parent_id,
			position,
			modified_at,
			pending_deletion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	getDeviceTabs = `
		SELECT device_id, device_name, tabs, modified_at, deleted
		FROM tabs
		WHERE device_id = ?;`

	getAllDeviceTabs = `
		SELECT device_id, device_name, tabs, modified_at, deleted
		FROM tabs;`

	upsertDeviceTabs = `
		INSERT INTO tabs (device_id, device_name, tabs, modified_at, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			device_name = excluded.device_name,
			tabs        = excluded.tabs,
			modified_at = excluded.modified_at,
			deleted     = excluded.deleted;`

	softDeleteDeviceTabs = `
		INSERT INTO tabs (device_id, tabs, deleted)
		VALUES (?, '[]', 1)
		ON CONFLICT (device_id) DO UPDATE SET
			tabs    = '[]',
			deleted = 1;`

	getSyncMetadata = `
		SELECT key, last_modified
		FROM sync_metadata
		WHERE feature = ? AND key = ?;`

	getAllSyncMetadata = `
		SELECT key, last_modified
		FROM sync_metadata
		WHERE feature = ?;`

	upsertSyncMetadata = `
		INSERT INTO sync_metadata (feature, key, last_modified)
		VALUES (?, ?, ?)
		ON CONFLICT (feature, key) DO UPDATE SET last_modified = excluded.last_modified;`

	getFeatureState = `
		SELECT last_sync_timestamp
		FROM feature_states
		WHERE feature = ?;`

	upsertFeatureState = `
		INSERT INTO feature_states (feature, last_sync_timestamp)
		VALUES (?, ?)
		ON CONFLICT (feature) DO UPDATE SET last_sync_timestamp = excluded.last_sync_timestamp;`

	getFeatureRevision = `
		SELECT rev
		FROM feature_revisions
		WHERE feature = ?;`

	initFeatureRevision = `
		INSERT OR IGNORE INTO feature_revisions (feature, rev)
		VALUES (?, 0);`

	advanceFeatureRevision = `
		UPDATE feature_revisions
		SET rev = rev + 1
		WHERE feature = ? AND rev = ?;`
)
