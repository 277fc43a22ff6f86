package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-browser-sync/internal/adapter"
	"github.com/MKhiriev/go-browser-sync/internal/config"
	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/service"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/internal/workers"
)

// App owns every long-lived component of the sync client.
//
// App implements [Client].
type App struct {
	cfg        *config.Config
	localStore store.LocalStore
	jobs       *workers.Workers
	logger     *logger.Logger
}

// NewApp assembles the client from configuration: local store, crypter,
// server adapter, and one data provider plus sync job per feature.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	localStore, err := openStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}

	crypter := crypto.NewAccountCrypter(cfg.Account.Passphrase, cfg.Salt())
	serverAdapter := adapter.NewHTTPServerAdapter(adapter.HTTPClientConfig{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Server.Timeout,
	})

	// The device id names the local open-tab list in the tabs feature; a
	// fresh id per process keeps retired lists behind as tombstones.
	deviceID := uuid.NewString()
	providers := []service.DataProvider{
		service.NewBookmarksProvider(localStore, log),
		service.NewSettingsProvider(localStore, log),
		service.NewTabsProvider(localStore, deviceID, cfg.Sync.DeviceName, log),
	}

	jobs := make([]workers.Worker, 0, len(providers))
	for _, provider := range providers {
		syncer := service.NewSyncer(provider, serverAdapter, crypter, log)
		jobs = append(jobs, service.NewSyncJob(syncer))
	}

	return &App{
		cfg:        cfg,
		localStore: localStore,
		jobs:       workers.New(jobs...),
		logger:     log,
	}, nil
}

// Run implements [Client]. It starts the per-feature sync jobs and blocks
// until ctx is cancelled; in-flight sync cycles run to completion before it
// returns.
func (a *App) Run(ctx context.Context) error {
	defer a.localStore.Close()

	a.jobs.StartAll(ctx, a.cfg.Sync.Interval)
	a.logger.Info().
		Dur("interval", a.cfg.Sync.Interval).
		Msg("sync jobs started")

	<-ctx.Done()
	a.logger.Info().Msg("shutting down, waiting for in-flight sync cycles")
	a.jobs.StopAll()
	return nil
}

func openStore(cfg *config.Config, log *logger.Logger) (store.LocalStore, error) {
	if cfg.Storage.DSN == ":memory:" {
		return store.NewMemoryStore(), nil
	}
	if strings.HasSuffix(cfg.Storage.DSN, ".json") {
		return store.NewFileStore(cfg.Storage.DSN)
	}

	db, err := store.NewConnectSQLite(context.Background(), cfg.Storage.DSN, log)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(db, log), nil
}
