// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/engine"
	"github.com/tomtom215/vaultkeeper/internal/logging"
)

// errOperationFailed is returned after a failed result has been printed
var errOperationFailed = errors.New("operation failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errOperationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1) //nolint:gocritic // stop() already called
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "vaultkeeper",
		Short: "Tenant backup, restore and cloud sync engine",
		Long: `Vaultkeeper takes encrypted per-tenant backups, restores them with an
optional safety backup, and replicates artifacts to cloud storage.

Configuration is read from --config, VAULTKEEPER_CONFIG or ./vaultkeeper.yaml,
with VAULTKEEPER_* environment variables taking precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			logging.Init(cfg.Logging.ToLogging())
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(c),
		newBackupCmd(c),
		newRestoreCmd(c),
		newKeysCmd(c),
		newConfigCmd(c),
		newPruneCmd(c),
	)
	return root
}

// openApp builds the engine and marks work left over from a crash as failed.
func (c *cli) openApp(ctx context.Context) (*app, error) {
	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return nil, err
	}

	recovered, err := a.engine.RecoverInterrupted(ctx)
	if err != nil {
		a.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, fmt.Errorf("failed to recover interrupted operations: %w", err)
	}
	if recovered.Backups > 0 || recovered.Restores > 0 {
		logging.Warn().
			Int("backups", recovered.Backups).
			Int("restores", recovered.Restores).
			Msg("Marked interrupted operations as failed")
	}
	return a, nil
}

// run opens the app for one command and closes it afterwards.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	a.startWorker(ctx)
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// emit prints a result and turns an unsuccessful outcome into a non-zero exit.
func emit(cmd *cobra.Command, outcome engine.Outcome, v any) error {
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !outcome.Success {
		return errOperationFailed
	}
	return nil
}
