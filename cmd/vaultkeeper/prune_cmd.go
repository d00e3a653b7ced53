// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newPruneCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prune [tenant]",
		Short: "Apply retention policies now",
		Long: `Delete completed backups outside the retention policy.

With a tenant argument only that tenant is pruned. Without one every tenant
is pruned; tenants with a backup or restore in progress are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					res, err := a.engine.PruneTenant(ctx, args[0])
					if err != nil {
						return err
					}
					return emit(cmd, res.Outcome, res)
				}

				results, err := a.backups.PruneAll(ctx)
				if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
					return errors.Join(err, perr)
				}
				return err
			})
		},
	}
}
