// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/vaultkeeper/internal/artifacts"
	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/catalog"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/codec"
	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/datasource"
	"github.com/tomtom215/vaultkeeper/internal/engine"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/keys"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

// app holds every component built from a Config.
// The caller must defer Close().
type app struct {
	cfg *config.Config

	catalog *catalog.Catalog
	codec   *codec.Codec
	source  datasource.Source
	bus     *events.Bus
	remote  cloud.RemoteStore
	syncer  *cloud.Syncer
	worker  *cloud.Worker
	backups *backup.Manager
	engine  *engine.Engine

	// closers run in reverse order on Close
	closers []func() error

	// workerStop cancels a worker started by startWorker
	workerStop context.CancelFunc
	workerDone chan struct{}
	closeOnce  sync.Once
}

// newApp opens storage and wires the engine. It does not start any
// background service.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close() //nolint:errcheck // Best effort cleanup on error
			a = nil
		}
	}()

	// Catalog
	if cfg.Catalog.InMemory {
		a.catalog, err = catalog.OpenInMemory()
	} else {
		a.catalog, err = catalog.Open(catalog.Options{
			Dir:        cfg.Catalog.Dir,
			SyncWrites: cfg.Catalog.SyncWrites,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.closers = append(a.closers, a.catalog.Close)

	// Artifacts and codec
	store, err := artifacts.New(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	a.codec, err = codec.New(codec.Options{MaxPlaintext: cfg.Snapshot.MaxDecompressedBytes})
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}
	a.closers = append(a.closers, func() error { a.codec.Close(); return nil })

	// Tenant data source
	if err := a.openSource(); err != nil {
		return nil, err
	}

	// Events
	var publisher events.Publisher = events.Discard
	if cfg.Events.Enabled {
		a.bus, err = events.NewBus(events.Config{Topic: cfg.Events.Topic, NATSURL: cfg.Events.NATSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		a.closers = append(a.closers, a.bus.Close)
		publisher = a.bus
	}

	keyManager, err := keys.NewManager(a.catalog, cfg.Crypto.MasterSecret,
		keys.WithExportWorkFactor(cfg.Crypto.ExportWorkFactor))
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}
	configs := tenantconfig.New(a.catalog, cfg.Defaults)

	deps := backup.Deps{
		Catalog:   a.catalog,
		Keys:      keyManager,
		Codec:     a.codec,
		Source:    a.source,
		Artifacts: store,
		Configs:   configs,
		Publisher: publisher,
	}

	// Cloud replication
	if cfg.Cloud.Enabled {
		a.remote, err = cloud.NewRemoteStore(ctx, &cfg.Cloud)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud store: %w", err)
		}
		a.syncer = cloud.NewSyncer(a.catalog, store, a.remote, publisher, cloud.SyncerOptions{
			Prefix:      cfg.Cloud.Prefix,
			MaxAttempts: cfg.Cloud.MaxAttempts,
		})
		a.worker = cloud.NewWorker(a.syncer, cfg.Cloud.QueueSize, cfg.Cloud.UploadsPerSecond)
		deps.SyncQueue = a.worker
		deps.Remote = a.remote
	}

	a.backups, err = backup.NewManager(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup manager: %w", err)
	}

	a.engine, err = engine.New(engine.Deps{
		Backups:   a.backups,
		Keys:      keyManager,
		Configs:   configs,
		Catalog:   a.catalog,
		Syncer:    a.syncer,
		Publisher: publisher,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	logging.Debug().
		Bool("cloud", cfg.Cloud.Enabled).
		Bool("events", cfg.Events.Enabled).
		Str("datasource", cfg.DataSource.Provider).
		Msg("Engine initialized")

	return a, nil
}

func (a *app) openSource() error {
	switch a.cfg.DataSource.Provider {
	case "duckdb":
		src, err := datasource.OpenDuckDB(a.cfg.DataSource.DuckDBPath, a.cfg.DataSource.Tables)
		if err != nil {
			return fmt.Errorf("failed to open duckdb data source: %w", err)
		}
		a.source = src
		a.closers = append(a.closers, src.Close)
	default:
		a.source = datasource.NewMemorySource()
	}
	return nil
}

// startWorker drains the cloud queue for one-shot commands. Close waits for
// queued uploads before stopping it. A no-op when cloud sync is disabled.
func (a *app) startWorker(ctx context.Context) {
	if a.worker == nil || a.workerStop != nil {
		return
	}
	ctx, a.workerStop = context.WithCancel(ctx)
	a.workerDone = make(chan struct{})
	go func() {
		defer close(a.workerDone)
		a.worker.Serve(ctx) //nolint:errcheck // Returns ctx.Err() on stop
	}()
}

// Close waits for background work, then releases storage in reverse order.
func (a *app) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.engine != nil {
			a.engine.Wait()
		}
		if a.workerStop != nil {
			// A worker stopped by a signal abandons its queue instead of draining it
			idle := make(chan struct{})
			go func() {
				a.worker.Wait()
				close(idle)
			}()
			select {
			case <-idle:
			case <-a.workerDone:
			}
			a.workerStop()
			<-a.workerDone
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
