// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/reelvault/internal/media"
)

func newCredentialsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage cloud provider credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set PROVIDER [SECRET]",
		Short: "Store a provider secret sealed with the daemon key (reads stdin without SECRET)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := argOrStdin(cmd, args[1:])
			if err != nil {
				return err
			}
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				if err := svc.StoreCredential(ctx, args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored credential for %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status PROVIDER",
		Short: "Report whether a provider has a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				_, ok := svc.LoadCredential(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s configured=%t\n", args[0], ok)
				return nil
			})
		},
	})
	return cmd
}
