// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/reelvault/internal/config"
	"github.com/ManuGH/reelvault/internal/log"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "reelvaultd",
		Short:         "Personal media library server",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file seeding the environment; missing files are ignored")

	root.AddCommand(newServeCmd(&g), newRootsCmd(&g), newSecretCmd(&g), newCredentialsCmd(&g))
	return root
}

// load resolves the configuration and reconfigures logging from it.
func (g *globalFlags) load() (config.AppConfig, error) {
	cfg, err := config.NewLoader(g.configPath, g.envFile, version).Load()
	if err != nil {
		return cfg, err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "reelvault", Version: version})
	return cfg, nil
}
