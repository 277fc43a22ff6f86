package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/adapter"
	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/models"
)

// Syncer drives the four-phase protocol of one feature against the server:
// collect, round-trip, reconcile, advance cursor. One Syncer per feature;
// cycles of the same feature never overlap (SyncJob serializes them).
type Syncer struct {
	provider DataProvider
	adapter  adapter.ServerAdapter
	crypter  crypto.Crypter
	logger   *logger.Logger
}

func NewSyncer(provider DataProvider, serverAdapter adapter.ServerAdapter, crypter crypto.Crypter, log *logger.Logger) *Syncer {
	return &Syncer{
		provider: provider,
		adapter:  serverAdapter,
		crypter:  crypter,
		logger:   log,
	}
}

// SyncCycle runs one full cycle. Infrastructure errors are reported through
// the provider's HandleSyncError and returned; the cursor is left unchanged
// on failure so the same batch is retried next cycle.
func (s *Syncer) SyncCycle(ctx context.Context) (models.SyncResult, error) {
	feature := s.provider.Feature()
	var result models.SyncResult

	cursor, err := s.provider.LastSyncTimestamp(ctx)
	if err != nil {
		return result, s.fail(fmt.Errorf("load sync cursor: %w", err))
	}

	// The snapshot moment: the precedence boundary for local-wins
	// decisions in this cycle.
	clientTimestamp := time.Now().UTC()

	sent, err := s.provider.FetchChangedObjects(ctx, s.crypter)
	if err != nil {
		return result, s.fail(fmt.Errorf("fetch changed objects: %w", err))
	}
	result.Sent = len(sent)

	received, serverTimestamp, err := s.adapter.Sync(ctx, feature, cursor, sent)
	if err != nil {
		return result, s.fail(fmt.Errorf("server round trip: %w", err))
	}
	result.Received = len(received)

	if cursor == "" {
		err = s.provider.HandleInitialSyncResponse(ctx, received, clientTimestamp, serverTimestamp, s.crypter)
	} else {
		err = s.provider.HandleSyncResponse(ctx, sent, received, clientTimestamp, serverTimestamp, s.crypter)
	}
	if err != nil {
		return result, s.fail(fmt.Errorf("handle sync response: %w", err))
	}

	s.logger.Info().
		Str("feature", string(feature)).
		Int("sent", result.Sent).
		Int("received", result.Received).
		Msg("sync cycle completed")
	return result, nil
}

func (s *Syncer) fail(err error) error {
	s.provider.HandleSyncError(err)
	return err
}
