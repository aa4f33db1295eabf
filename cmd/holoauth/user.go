// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/store"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user; the password is read from the first line of stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, deps.withDefaults())
		},
	}
	create.Flags().String("name", "", "display name")
	create.Flags().String("email", "", "email address")
	cmd.AddCommand(create)

	return cmd
}

func runUserCreate(cmd *cobra.Command, deps *Deps) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	ctx := cmd.Context()
	pool, err := deps.PoolFactory(ctx, cfg.Secrets.DatabaseURL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	creds, err := auth.NewCredentialStore(postgres.NewUserRepository(pool), auth.NewArgon2idHasher())
	if err != nil {
		return err
	}
	user, err := creds.CreateUser(ctx, auth.NewUserParams{Name: name, Email: email, Password: password})
	if err != nil {
		return err
	}

	cmd.Printf("Created user %s (%s)\n", user.ID, user.Email)
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
