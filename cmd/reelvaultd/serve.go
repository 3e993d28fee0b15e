// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/reelvault/internal/daemon"
	"github.com/ManuGH/reelvault/internal/log"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := daemon.Bootstrap(ctx, cfg, daemon.Options{})
			if err != nil {
				return err
			}
			logger := log.WithComponent("daemon")
			logger.Info().
				Str("version", version).
				Str("listen", cfg.Listen).
				Str("data_dir", cfg.DataDir).
				Msg("starting reelvault")
			return daemon.NewManager(daemon.ServerConfig{ListenAddr: cfg.Listen}, rt).Run(ctx)
		},
	}
}
