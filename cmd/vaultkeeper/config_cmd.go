// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/tenantconfig"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change tenant backup policies",
	}
	cmd.AddCommand(newConfigGetCmd(c), newConfigSetCmd(c))
	return cmd
}

func newConfigGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant>",
		Short: "Show a tenant's backup policy (defaults when none is stored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				cfg, err := a.engine.GetConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cfg)
			})
		},
	}
}

func newConfigSetCmd(c *cli) *cobra.Command {
	var (
		retentionCount  int
		retentionDays   int
		autoCloudUpload bool
		schedule        string
		updatedBy       string
	)

	cmd := &cobra.Command{
		Use:   "set <tenant>",
		Short: "Change fields of a tenant's backup policy",
		Long: `Change fields of a tenant's backup policy. Only flags that are given
are changed. A policy with a non-manual schedule needs a retention count
or retention days above zero.`,
		Example: `  vaultkeeper config set acme --retention-count 14 --schedule daily
  vaultkeeper config set acme --auto-cloud-upload=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch tenantconfig.Patch
			if flags.Changed("retention-count") {
				patch.RetentionCount = &retentionCount
			}
			if flags.Changed("retention-days") {
				patch.RetentionDays = &retentionDays
			}
			if flags.Changed("auto-cloud-upload") {
				patch.AutoCloudUpload = &autoCloudUpload
			}
			if flags.Changed("schedule") {
				s := strings.ToLower(schedule)
				patch.ScheduleFrequency = &s
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to change: pass at least one policy flag")
			}

			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.UpdateConfig(ctx, args[0], patch, updatedBy)
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}

	cmd.Flags().IntVar(&retentionCount, "retention-count", 0, "keep this many newest completed backups")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "keep backups completed within this many days")
	cmd.Flags().BoolVar(&autoCloudUpload, "auto-cloud-upload", false, "replicate every completed backup")
	cmd.Flags().StringVar(&schedule, "schedule", "", "manual, hourly, daily, weekly or monthly")
	cmd.Flags().StringVar(&updatedBy, "by", "cli", "caller recorded on the policy")
	return cmd
}
