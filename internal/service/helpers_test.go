package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// Poison blobs recognized by fakeCrypter.Decrypt.
const (
	blobTooShort  = "!too-short"
	blobCorrupted = "!corrupted"
)

// fakeCrypter is a hand-rolled Crypter for strategy-level tests where
// gomock expectations would drown the assertions. Encrypt is the identity,
// Decrypt recognizes two poison blobs to drive the error paths.
type fakeCrypter struct {
	keyErr error
}

func (f *fakeCrypter) FetchSecretKey() ([]byte, error) {
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return []byte("test-secret-key"), nil
}

func (f *fakeCrypter) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (f *fakeCrypter) Decrypt(blob, _ []byte) ([]byte, error) {
	switch string(blob) {
	case blobTooShort:
		return nil, fmt.Errorf("%w: %w", crypto.ErrDecryptionFailed, crypto.ErrCiphertextTooShort)
	case blobCorrupted:
		return nil, crypto.ErrDecryptionFailed
	}
	return append([]byte(nil), blob...), nil
}

// testOpts builds steady-state applyOptions around a fakeCrypter.
func testOpts(deduplicate bool, clientTimestamp time.Time) applyOptions {
	return applyOptions{
		deduplicate:     deduplicate,
		clientTimestamp: clientTimestamp,
		crypter:         &fakeCrypter{},
		key:             []byte("test-secret-key"),
	}
}

// beginTx opens a transaction and discards it on cleanup if the test never
// saved it.
func beginTx(t *testing.T, s store.LocalStore, feature models.Feature) store.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background(), feature)
	require.NoError(t, err)
	t.Cleanup(tx.Discard)
	return tx
}

// seedStore runs fn inside a committed transaction.
func seedStore(t *testing.T, s store.LocalStore, feature models.Feature, fn func(tx store.Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx, feature)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Save(ctx))
}

func strPtr(s string) *string { return &s }

// settingRecord builds an upload-shaped settings record with the fake
// identity cipher.
func settingRecord(t *testing.T, key models.SettingKey, value *string) models.SyncableRecord {
	t.Helper()
	payload, err := json.Marshal(models.SettingPayload{Key: string(key), Value: value})
	require.NoError(t, err)
	return models.SyncableRecord{ID: string(key), Payload: payload}
}

// bookmarkRecord builds a bookmarks record carrying the given payload.
func bookmarkRecord(t *testing.T, payload models.BookmarkPayload) models.SyncableRecord {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.SyncableRecord{ID: payload.ID, Payload: raw}
}

// tabsRecord builds a tabs record for one device.
func tabsRecord(t *testing.T, payload models.TabsPayload) models.SyncableRecord {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.SyncableRecord{ID: payload.DeviceID, Payload: raw}
}

func tombstone(id string) models.SyncableRecord {
	return models.SyncableRecord{ID: id, Deleted: true}
}

func testLogger() *logger.Logger {
	return logger.Nop()
}
