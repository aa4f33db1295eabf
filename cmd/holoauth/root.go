// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
)

// NewRootCmd creates the root command for the holoauth CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

// newRootCmd builds the command tree. A nil deps uses the real factories.
func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holoauth",
		Short: "holoauth - credential login with sessions and remember-me cookies",
		Long: `holoauth authenticates users by email and password, keeps them signed
in with a server-side session, and restores the session from a long-lived
remember-me cookie.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "YAML config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))

	return cmd
}

// loadConfig reads configuration for cmd from its flags, the --config file
// and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err //nolint:wrapcheck // flag is always registered
	}
	return config.Load(cmd.Flags(), path)
}
