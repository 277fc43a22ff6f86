package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// sentItemReconciler decides, after a round trip, which locally sent
// records can have their pending-sync markers cleared and which must stay
// dirty for the next cycle.
type sentItemReconciler struct {
	strategy ReconciliationStrategy
	logger   *logger.Logger
}

func newSentItemReconciler(strategy ReconciliationStrategy, log *logger.Logger) *sentItemReconciler {
	return &sentItemReconciler{strategy: strategy, logger: log}
}

// CleanUpSentItems walks the sent batch against current metadata:
//
//   - an item whose metadata advanced past clientTimestamp was edited again
//     during the round trip and stays dirty;
//   - a sent tombstone whose id came back non-deleted is resurrected — the
//     server says the record still exists elsewhere, deleting it would lose
//     data;
//   - an acknowledged tombstone is physically purged;
//   - everything else has its marker cleared.
//
// Marker clearing is a single pass with an explicit keep-dirty decision per
// item; modification timestamps are plain fields here, not store-managed.
func (r *sentItemReconciler) CleanUpSentItems(ctx context.Context, tx store.Tx, sent, received []models.SyncableRecord, clientTimestamp time.Time) error {
	if len(sent) == 0 {
		return nil
	}

	// Last occurrence in arrival order is authoritative for duplicate ids.
	receivedByID := make(map[string]models.SyncableRecord, len(received))
	for _, rec := range received {
		receivedByID[rec.ID] = rec
	}

	ids := make([]string, 0, len(sent))
	for _, s := range sent {
		ids = append(ids, s.ID)
	}
	metadata, err := tx.Metadata().GetBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch sent item metadata: %w", err)
	}

	for _, s := range sent {
		if m, ok := metadata[s.ID]; ok && m.LastModified != nil && m.LastModified.After(clientTimestamp) {
			// Edited again mid-flight; next cycle uploads it.
			r.logger.Debug().
				Str("id", s.ID).
				Msg("sent item modified during round trip, keeping dirty")
			continue
		}

		if s.Deleted {
			if rec, seen := receivedByID[s.ID]; seen && !rec.Deleted {
				// Local change rejected by sync: the tombstone was
				// superseded, cancel the deletion.
				if err = r.strategy.Resurrect(ctx, tx, s.ID); err != nil {
					return fmt.Errorf("resurrect sent item %s: %w", s.ID, err)
				}
			} else if err = r.strategy.Purge(ctx, tx, s.ID); err != nil {
				return fmt.Errorf("purge sent tombstone %s: %w", s.ID, err)
			}
		}

		if err = r.strategy.ClearMarker(ctx, tx, s.ID); err != nil {
			return fmt.Errorf("clear sent item flag %s: %w", s.ID, err)
		}
		if err = tx.Metadata().SetLastModified(ctx, s.ID, nil); err != nil {
			return fmt.Errorf("clear sent item marker %s: %w", s.ID, err)
		}
	}
	return nil
}
