// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

func mockPoolDeps(t *testing.T) (pgxmock.PgxPoolIface, *Deps) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
	return mock, &Deps{
		PoolFactory: func(context.Context, string, store.ConnectOptions) (DatabasePool, error) {
			return mock, nil
		},
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestUserCreate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/holoauth")
	mock, deps := mockPoolDeps(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectClose()

	out, err := execute(t, deps, "password123\n",
		"user", "create", "--name", "beatrix", "--email", "Test@Example.com")

	require.NoError(t, err)
	assert.Contains(t, out, "Created user")
	assert.Contains(t, out, "test@example.com")
	assert.NotContains(t, out, "password123")
}

func TestUserCreate_EmailTaken(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/holoauth")
	mock, deps := mockPoolDeps(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(anyArgs(7)...).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectClose()

	_, err := execute(t, deps, "password123\n",
		"user", "create", "--name", "beatrix", "--email", "test@example.com")

	errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
}

func TestUserCreate_InvalidInputNeverTouchesDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/holoauth")

	tests := []struct {
		name  string
		stdin string
		args  []string
		code  string
	}{
		{"blank name", "password123\n", []string{"--name", " ", "--email", "test@example.com"}, "USER_INVALID_NAME"},
		{"bad email", "password123\n", []string{"--name", "beatrix", "--email", "not-an-email"}, "USER_INVALID_EMAIL"},
		{"short password", "abc\n", []string{"--name", "beatrix", "--email", "test@example.com"}, "USER_INVALID_PASSWORD"},
		{"no password", "", []string{"--name", "beatrix", "--email", "test@example.com"}, "PASSWORD_READ_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, deps := mockPoolDeps(t)
			if tt.code != "PASSWORD_READ_FAILED" {
				mock.ExpectClose()
			}

			_, err := execute(t, deps, tt.stdin, append([]string{"user", "create"}, tt.args...)...)

			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestReadPassword_TrimsCarriageReturn(t *testing.T) {
	cmd := NewUserCmd(nil)
	cmd.SetIn(strings.NewReader("secret\r\nignored\n"))

	password, err := readPassword(cmd)

	require.NoError(t, err)
	assert.Equal(t, "secret", password)
}
