// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/backup"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

func newBackupCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, inspect and replicate backups",
	}
	cmd.AddCommand(
		newBackupCreateCmd(c),
		newBackupListCmd(c),
		newBackupShowCmd(c),
		newBackupSyncCmd(c),
	)
	return cmd
}

func newBackupCreateCmd(c *cli) *cobra.Command {
	var (
		backupType string
		label      string
		createdBy  string
		upload     bool
		async      bool
	)

	cmd := &cobra.Command{
		Use:   "create <tenant>",
		Short: "Take a backup of one tenant",
		Long: `Take a FULL, INCREMENTAL or MANUAL backup of one tenant.

An INCREMENTAL backup with no completed predecessor runs as FULL.
With --async the PENDING record is printed first and the command waits
for the backup to finish before exiting.`,
		Example: `  vaultkeeper backup create acme --type FULL --label "before migration"
  vaultkeeper backup create acme --type INCREMENTAL --upload`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := backup.CreateRequest{
				TenantID:      args[0],
				Type:          models.BackupType(strings.ToUpper(backupType)),
				Label:         label,
				CreatedBy:     createdBy,
				UploadToCloud: upload,
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if async {
					res, err := a.engine.CreateBackupAsync(ctx, req)
					if err != nil {
						return err
					}
					return emit(cmd, res.Outcome, res)
				}
				res, err := a.engine.CreateBackup(ctx, req)
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}

	cmd.Flags().StringVar(&backupType, "type", string(models.BackupTypeFull), "FULL, INCREMENTAL or MANUAL")
	cmd.Flags().StringVar(&label, "label", "", "free text shown in listings")
	cmd.Flags().StringVar(&createdBy, "by", "cli", "caller recorded on the backup")
	cmd.Flags().BoolVar(&upload, "upload", false, "replicate to cloud storage after completion")
	cmd.Flags().BoolVar(&async, "async", false, "print the PENDING record before the backup runs")
	return cmd
}

func newBackupListCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <tenant>",
		Short: "List backups, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				records, err := a.engine.ListBackups(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to return (0 for all)")
	return cmd
}

func newBackupShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tenant> <backup-id>",
		Short: "Show one backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.GetBackup(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
}

func newBackupSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <tenant> <backup-id>",
		Short: "Upload a completed backup to cloud storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.SyncToCloud(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
}
