// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/cloud"
	"github.com/tomtom215/vaultkeeper/internal/events"
	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/supervisor"
	"github.com/tomtom215/vaultkeeper/internal/supervisor/services"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background services until interrupted",
		Long: `Run the long-lived services under supervision:

  data-layer    catalog value-log GC
  worker-layer  cloud sync queue, retention pruner, event audit log
  api-layer     /metrics, /health/live and /health/ready

Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			tree, err := buildTree(a)
			if err != nil {
				return err
			}

			logging.Info().
				Str("metrics_addr", c.cfg.Server.MetricsAddr).
				Bool("cloud", c.cfg.Cloud.Enabled).
				Bool("retention", c.cfg.Retention.Enabled).
				Msg("Vaultkeeper started")

			if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("supervisor tree stopped: %w", err)
			}

			if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
				logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
			}
			logging.Info().Msg("Vaultkeeper stopped")
			return nil
		},
	}
}

// buildTree adds every enabled service to a new supervisor tree.
func buildTree(a *app) (*supervisor.SupervisorTree, error) {
	cfg := a.cfg

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewBadgerGCService(a.catalog, cfg.Catalog.GCInterval, cfg.Catalog.GCRatio))

	if a.worker != nil {
		tree.AddWorkerService(a.worker)
	}
	if cfg.Retention.Enabled {
		tree.AddWorkerService(backup.NewPruner(a.backups, cfg.Retention.Interval))
	}
	if a.bus != nil {
		tree.AddWorkerService(events.NewAuditLogger(a.bus))
	}

	if cfg.Server.MetricsAddr != "" {
		router := services.NewMetricsRouter(healthChecks(a),
			services.WithRateLimit(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow))
		server := &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	}

	return tree, nil
}

// healthChecks are the readiness probes for /health/ready.
func healthChecks(a *app) map[string]services.HealthCheck {
	checks := map[string]services.HealthCheck{
		"catalog": func(context.Context) error {
			if a.catalog.DB().IsClosed() {
				return errors.New("catalog is closed")
			}
			return nil
		},
	}

	if breaker, ok := a.remote.(*cloud.BreakerStore); ok {
		checks["cloud"] = func(context.Context) error {
			if state := breaker.State(); state == "open" {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		}
	}
	return checks
}
