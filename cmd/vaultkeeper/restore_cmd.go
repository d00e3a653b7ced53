// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/backup"
)

func newRestoreCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore tenants from backups",
	}
	cmd.AddCommand(
		newRestoreRunCmd(c),
		newRestoreShowCmd(c),
		newRestoreListCmd(c),
		newRestoreValidateCmd(c),
	)
	return cmd
}

func newRestoreRunCmd(c *cli) *cobra.Command {
	var (
		noSafety    bool
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "run <tenant> <backup-id>",
		Short: "Restore a tenant from one of its backups",
		Long: `Restore a tenant from one of its completed backups.

A MANUAL safety backup is taken first unless --no-safety-backup is set.
If applying the data fails part way, the safety backup is re-applied and
the restore ends ROLLED_BACK.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := backup.RestoreRequest{
				TenantID:           args[0],
				BackupID:           args[1],
				CreateSafetyBackup: !noSafety,
				RequestedBy:        requestedBy,
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.Restore(ctx, req)
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
	cmd.Flags().BoolVar(&noSafety, "no-safety-backup", false, "skip the safety backup")
	cmd.Flags().StringVar(&requestedBy, "by", "cli", "caller recorded on the restore")
	return cmd
}

func newRestoreShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tenant> <restore-id>",
		Short: "Show one restore operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.GetRestore(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
}

func newRestoreListCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <tenant>",
		Short: "List restore operations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				ops, err := a.engine.ListRestores(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ops)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to return (0 for all)")
	return cmd
}

func newRestoreValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tenant> <backup-id>",
		Short: "Check that a backup decrypts and parses without applying it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.ValidateBackup(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
}
