// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/reelvault/internal/daemon"
)

// argOrStdin returns the single argument, or stdin without its trailing
// newline when no argument is given.
func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func newSecretCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Seal or open stored credentials with the daemon key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt [PLAINTEXT]",
		Short: "Encrypt a value (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			in, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			sealed, err := daemon.Cipher(cfg).Encrypt(in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decrypt [SEALED]",
		Short: "Decrypt a value; values that are not sealed print unchanged",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			in, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), daemon.Cipher(cfg).Decrypt(in))
			return nil
		},
	})
	return cmd
}
