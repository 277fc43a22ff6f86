package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// settingsStrategy is the flat-shaped response handler: records are keyed
// by a fixed setting key, soft-deleted by clearing the value.
type settingsStrategy struct {
	knownKeys map[models.SettingKey]struct{}
	logger    *logger.Logger
}

func newSettingsStrategy(log *logger.Logger) *settingsStrategy {
	known := make(map[models.SettingKey]struct{}, len(models.KnownSettingKeys))
	for _, k := range models.KnownSettingKeys {
		known[k] = struct{}{}
	}
	return &settingsStrategy{knownKeys: known, logger: log}
}

func (s *settingsStrategy) PrepareForFirstSync(ctx context.Context, tx store.Tx, now time.Time) error {
	settings, err := tx.Settings().All(ctx)
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}
	for _, setting := range settings {
		if err = tx.Metadata().SetLastModified(ctx, string(setting.Key), &now); err != nil {
			return fmt.Errorf("mark setting %s modified: %w", setting.Key, err)
		}
	}
	return nil
}

func (s *settingsStrategy) CollectChanges(ctx context.Context, tx store.Tx, crypter crypto.Crypter, key []byte) ([]models.SyncableRecord, error) {
	entries, err := tx.Metadata().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync metadata: %w", err)
	}

	var records []models.SyncableRecord
	for _, m := range entries {
		if m.LastModified == nil {
			continue
		}

		setting, err := tx.Settings().Get(ctx, models.SettingKey(m.Key))
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("load setting %s: %w", m.Key, err)
		}

		record := models.SyncableRecord{ID: m.Key, ClientLastModified: m.LastModified}
		if errors.Is(err, store.ErrRecordNotFound) || setting.IsDeleted() {
			record.Deleted = true
		} else {
			payload, err := json.Marshal(models.SettingPayload{Key: m.Key, Value: setting.Value})
			if err != nil {
				return nil, fmt.Errorf("encode setting %s: %w", m.Key, err)
			}
			if record.Payload, err = crypter.Encrypt(payload, key); err != nil {
				return nil, fmt.Errorf("encrypt setting %s: %w", m.Key, err)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *settingsStrategy) Apply(ctx context.Context, tx store.Tx, received []models.SyncableRecord, opts applyOptions) (applyStats, error) {
	var stats applyStats

	for _, record := range received {
		key := models.SettingKey(record.ID)
		if _, known := s.knownKeys[key]; !known {
			// Forward compatibility: a newer client wrote a key this
			// build does not understand yet.
			stats.skipped++
			continue
		}

		skip, err := localWins(ctx, tx, record.ID, opts)
		if err != nil {
			return stats, err
		}
		if skip {
			stats.skipped++
			continue
		}

		if record.Deleted {
			if err = tx.Settings().SetValue(ctx, key, nil); err != nil {
				return stats, fmt.Errorf("apply settings tombstone %s: %w", key, err)
			}
		} else {
			plaintext, skipRecord, err := decryptRecordPayload(record, opts)
			if err != nil {
				return stats, err
			}
			if skipRecord {
				stats.skipped++
				continue
			}
			var payload models.SettingPayload
			if err = json.Unmarshal(plaintext, &payload); err != nil {
				return stats, fmt.Errorf("decode setting %s: %w", key, err)
			}
			if err = tx.Settings().SetValue(ctx, key, payload.Value); err != nil {
				return stats, fmt.Errorf("apply setting %s: %w", key, err)
			}
		}

		// Remote state is now authoritative and acknowledged.
		if err = tx.Metadata().SetLastModified(ctx, record.ID, nil); err != nil {
			return stats, fmt.Errorf("clear metadata %s: %w", record.ID, err)
		}
		stats.applied++
	}
	return stats, nil
}

func (s *settingsStrategy) Purge(ctx context.Context, tx store.Tx, id string) error {
	// The cleared row is the merge anchor for the flat shape; nothing to
	// remove beyond the value, and clearing twice is a no-op.
	return tx.Settings().SetValue(ctx, models.SettingKey(id), nil)
}

func (s *settingsStrategy) Resurrect(_ context.Context, _ store.Tx, _ string) error {
	// The non-deleted record that supersedes the tombstone was already
	// applied by Apply; the restored value is in place.
	return nil
}

func (s *settingsStrategy) ClearMarker(_ context.Context, _ store.Tx, _ string) error {
	// The shared metadata row is the flat shape's only dirty marker.
	return nil
}

// localWins implements the steady-state timestamp precedence rule: a local
// record changed after this cycle's snapshot wins over the incoming remote
// record, silently.
func localWins(ctx context.Context, tx store.Tx, id string, opts applyOptions) (bool, error) {
	if opts.deduplicate {
		return false, nil
	}
	m, err := tx.Metadata().Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch metadata %s: %w", id, err)
	}
	return m.LastModified != nil && m.LastModified.After(opts.clientTimestamp), nil
}

// decryptRecordPayload opens a record's payload. A blob shorter than the
// cipher nonce is a malformed record: it is skipped so the rest of the
// batch still reconciles. Any other decryption failure is fatal for the
// cycle.
func decryptRecordPayload(record models.SyncableRecord, opts applyOptions) (plaintext []byte, skip bool, err error) {
	plaintext, err = opts.crypter.Decrypt(record.Payload, opts.key)
	if err == nil {
		return plaintext, false, nil
	}
	if errors.Is(err, crypto.ErrCiphertextTooShort) {
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("decrypt record %s: %w", record.ID, err)
}
