// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vaultkeeper/internal/keys"
)

// passphraseEnvVar supplies the export passphrase without putting it on the command line
const passphraseEnvVar = "VAULTKEEPER_KEY_PASSPHRASE"

func newKeysCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage tenant encryption keys",
	}
	cmd.AddCommand(
		newKeysExportCmd(c),
		newKeysImportCmd(c),
		newKeysRotateCmd(c),
		newKeysListCmd(c),
	)
	return cmd
}

func newKeysExportCmd(c *cli) *cobra.Command {
	var (
		version int
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export <tenant>",
		Short: "Export key material for offline escrow",
		Long: `Export a tenant key version for offline escrow.

When ` + passphraseEnvVar + ` is set the export is age-encrypted with that
passphrase. Without it the material is written as plain base64.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := keys.ExportOptions{
				Version:    version,
				Passphrase: os.Getenv(passphraseEnvVar),
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.ExportKey(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if res.Success && outPath != "" {
					if err := os.WriteFile(outPath, []byte(res.Wrapped), 0o600); err != nil {
						return fmt.Errorf("failed to write %s: %w", outPath, err)
					}
					res.Wrapped = ""
					res.Message += " to " + outPath
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "key version (0 for the active key)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the export to a file (mode 0600)")
	return cmd
}

func newKeysImportCmd(c *cli) *cobra.Command {
	var (
		version   int
		bootstrap bool
	)

	cmd := &cobra.Command{
		Use:   "import <tenant> <file|->",
		Short: "Import escrowed key material",
		Long: `Import key material produced by "keys export". Read from stdin when
the file is "-". ` + passphraseEnvVar + ` opens passphrase-protected exports.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wrapped, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			opts := keys.ImportOptions{
				Version:    version,
				Passphrase: os.Getenv(passphraseEnvVar),
				Bootstrap:  bootstrap,
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.ImportKey(ctx, args[0], wrapped, opts)
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "version for raw material without an envelope")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "create the tenant's key namespace if it has none")
	return cmd
}

func newKeysRotateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <tenant>",
		Short: "Retire the active key and activate a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.RotateKey(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(cmd, res.Outcome, res)
			})
		},
	}
}

func newKeysListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant>",
		Short: "List key versions without material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				infos, err := a.engine.ListKeys(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), infos)
			})
		},
	}
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // Path is supplied by the operator
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key material: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
