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

// tabsStrategy is the list-shaped response handler: one record per device,
// identified by device id, carrying that device's full ordered tab list.
// Only the local device's own list is ever uploaded.
type tabsStrategy struct {
	deviceID   string
	deviceName string
	logger     *logger.Logger
}

func newTabsStrategy(deviceID, deviceName string, log *logger.Logger) *tabsStrategy {
	return &tabsStrategy{deviceID: deviceID, deviceName: deviceName, logger: log}
}

func (t *tabsStrategy) PrepareForFirstSync(ctx context.Context, tx store.Tx, now time.Time) error {
	local, err := tx.Tabs().Get(ctx, t.deviceID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load local tabs: %w", err)
	}

	ts := now
	local.ModifiedAt = &ts
	if err = tx.Tabs().Upsert(ctx, local); err != nil {
		return fmt.Errorf("mark local tabs modified: %w", err)
	}
	return tx.Metadata().SetLastModified(ctx, t.deviceID, &now)
}

func (t *tabsStrategy) CollectChanges(ctx context.Context, tx store.Tx, crypter crypto.Crypter, key []byte) ([]models.SyncableRecord, error) {
	all, err := tx.Tabs().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list device tabs: %w", err)
	}

	var records []models.SyncableRecord
	for _, device := range all {
		if device.ModifiedAt == nil {
			continue
		}

		record := models.SyncableRecord{ID: device.DeviceID, ClientLastModified: device.ModifiedAt}
		if device.Deleted {
			record.Deleted = true
		} else {
			payload, err := json.Marshal(models.TabsPayload{
				DeviceID:   device.DeviceID,
				DeviceName: device.DeviceName,
				Tabs:       device.Tabs,
			})
			if err != nil {
				return nil, fmt.Errorf("encode tabs for device %s: %w", device.DeviceID, err)
			}
			if record.Payload, err = crypter.Encrypt(payload, key); err != nil {
				return nil, fmt.Errorf("encrypt tabs for device %s: %w", device.DeviceID, err)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (t *tabsStrategy) Apply(ctx context.Context, tx store.Tx, received []models.SyncableRecord, opts applyOptions) (applyStats, error) {
	var stats applyStats

	for _, record := range received {
		skip, err := localWins(ctx, tx, record.ID, opts)
		if err != nil {
			return stats, err
		}
		if skip {
			stats.skipped++
			continue
		}

		if record.Deleted {
			if err = tx.Tabs().SoftDelete(ctx, record.ID); err != nil {
				return stats, fmt.Errorf("apply tabs tombstone %s: %w", record.ID, err)
			}
		} else {
			plaintext, skipRecord, err := decryptRecordPayload(record, opts)
			if err != nil {
				return stats, err
			}
			if skipRecord {
				t.logger.Warn().Str("id", record.ID).Msg("skipping malformed tabs record")
				stats.skipped++
				continue
			}
			var payload models.TabsPayload
			if err = json.Unmarshal(plaintext, &payload); err != nil {
				return stats, fmt.Errorf("decode tabs %s: %w", record.ID, err)
			}
			// The record id on the wire is authoritative for the
			// device identity.
			if err = tx.Tabs().Upsert(ctx, &models.DeviceTabs{
				DeviceID:   record.ID,
				DeviceName: payload.DeviceName,
				Tabs:       payload.Tabs,
			}); err != nil {
				return stats, fmt.Errorf("apply tabs %s: %w", record.ID, err)
			}
		}

		if err = tx.Metadata().SetLastModified(ctx, record.ID, nil); err != nil {
			return stats, fmt.Errorf("clear metadata %s: %w", record.ID, err)
		}
		stats.applied++
	}
	return stats, nil
}

func (t *tabsStrategy) Purge(ctx context.Context, tx store.Tx, id string) error {
	// Soft-deleted rows are retained as tombstone anchors; clearing twice
	// is a no-op.
	return tx.Tabs().SoftDelete(ctx, id)
}

func (t *tabsStrategy) Resurrect(ctx context.Context, tx store.Tx, id string) error {
	device, err := tx.Tabs().Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tabs %s: %w", id, err)
	}
	device.Deleted = false
	device.ModifiedAt = nil
	return tx.Tabs().Upsert(ctx, device)
}

func (t *tabsStrategy) ClearMarker(ctx context.Context, tx store.Tx, id string) error {
	device, err := tx.Tabs().Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tabs %s: %w", id, err)
	}
	if device.ModifiedAt == nil {
		return nil
	}
	device.ModifiedAt = nil
	return tx.Tabs().Upsert(ctx, device)
}
