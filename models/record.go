package models

import "time"

// Feature identifies one independently synchronized data set. Each feature
// carries its own server cursor, metadata namespace, and reconciliation shape.
type Feature string

const (
	FeatureBookmarks Feature = "bookmarks"
	FeatureSettings  Feature = "settings"
	FeatureTabs      Feature = "tabs"
)

// SyncableRecord is the transport-level unit exchanged with the sync server.
// It is agnostic of both the wire format and the local storage schema.
type SyncableRecord struct {
	// ID is the stable identifier of the record, unique within the
	// feature's namespace.
	ID string `json:"id"`

	// Payload holds the encrypted feature payload. It is nil if and only
	// if the record is a tombstone.
	Payload []byte `json:"payload,omitempty"`

	// Deleted marks the record as a tombstone. Deletions are exchanged,
	// not silently dropped, so other devices learn about them.
	Deleted bool `json:"deleted,omitempty"`

	// ClientLastModified is the moment the sending device last changed
	// this record. Set by the change collector at upload time.
	ClientLastModified *time.Time `json:"client_last_modified,omitempty"`
}

// IsTombstone reports whether the record announces a deletion.
func (r SyncableRecord) IsTombstone() bool {
	return r.Deleted
}

// SyncMetadata is the per-record bookkeeping entry of one feature.
// LastModified holds the local modification time that has not yet been
// acknowledged by the server; it is reset to nil once a round trip confirms
// the change (or once a remote change is accepted as authoritative). The
// entry itself is retained as the merge anchor and is never deleted.
type SyncMetadata struct {
	Key          string     `json:"key"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// SyncResult summarizes one completed sync cycle of a feature.
type SyncResult struct {
	Sent     int
	Received int
	Applied  int
	Skipped  int
}
