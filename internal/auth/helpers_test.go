// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
)

// fixture wires the real hasher and an in-memory repository.
type fixture struct {
	users  *memory.UserRepository
	creds  *auth.CredentialStore
	logs   *bytes.Buffer
	logger *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	users := memory.NewUserRepository()
	creds, err := auth.NewCredentialStoreWithLogger(users, auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)

	return &fixture{users: users, creds: creds, logs: &buf, logger: logger}
}

func (f *fixture) createBeatrix(t *testing.T) *auth.User {
	t.Helper()
	user, err := f.creds.CreateUser(context.Background(), auth.NewUserParams{
		Name:     "beatrix",
		Email:    "test@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}
