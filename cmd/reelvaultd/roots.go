// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/daemon"
	"github.com/ManuGH/reelvault/internal/media"
)

// withCatalog runs fn against a freshly started persistence worker.
func withCatalog(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, svc *media.Service) error) (err error) {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cat, err := daemon.OpenCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cat.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, media.NewService(media.Deps{Catalog: cat.Client, Secrets: daemon.Cipher(cfg)}))
}

func newRootsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage media roots",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPATH\tKIND\tACTIVE")
				for _, r := range svc.ListRoots(ctx) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", r.ID, r.Path, r.SourceKind, r.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	var kind string
	add := &cobra.Command{
		Use:   "add PATH",
		Short: "Register a media root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk := catalog.SourceKind(kind)
			if !sk.Valid() {
				return fmt.Errorf("unknown kind %q (want local or cloud)", kind)
			}
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				r, err := svc.AddRoot(ctx, args[0], sk)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", r.Path, r.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&kind, "kind", string(catalog.SourceLocal), "root kind: local or cloud")

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a media root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				if err := svc.RemoveRoot(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove, setActiveCmd(g, "activate", true), setActiveCmd(g, "deactivate", false))
	return cmd
}

func setActiveCmd(g *globalFlags, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: fmt.Sprintf("Mark a media root %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, svc *media.Service) error {
				r, err := svc.SetRootActive(ctx, args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", r.Path, r.IsActive)
				return nil
			})
		},
	}
}
