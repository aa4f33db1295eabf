// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/pkg/errutil"
)

const secret = "0123456789abcdef0123456789abcdef"

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.String("config", "", "not a config key")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holoauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://holoauth@localhost/holoauth")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HOLOAUTH_COOKIE_SECRET", secret)
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := config.Load(newFlags(t), "")

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.SessionStorePostgres, cfg.Session.Store)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, time.Minute, cfg.Session.TouchInterval)
	assert.Equal(t, 365*24*time.Hour, cfg.Cookie.RememberMaxAge)
	assert.False(t, cfg.Auth.RotateRememberToken)
	assert.False(t, cfg.Auth.PurgeInvalidCookie)
	assert.Equal(t, uint64(10), cfg.Database.ConnectAttempts)
	assert.Equal(t, "postgres://holoauth@localhost/holoauth", cfg.Secrets.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Secrets.RedisURL)
	assert.Equal(t, secret, cfg.Secrets.CookieSecret)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	setSecrets(t)
	path := writeFile(t, `
http:
  addr: 0.0.0.0:8443
session:
  store: redis
  ttl: 2h
cookie:
  secure: true
  remember_max_age: 720h
auth:
  rotate_remember_token: true
`)

	cfg, err := config.Load(newFlags(t), path)

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8443", cfg.HTTP.Addr)
	assert.Equal(t, config.SessionStoreRedis, cfg.Session.Store)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Cookie.Secure)
	assert.Equal(t, 720*time.Hour, cfg.Cookie.RememberMaxAge)
	assert.True(t, cfg.Auth.RotateRememberToken)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep flag defaults")
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	setSecrets(t)
	path := writeFile(t, `
http:
  addr: 0.0.0.0:8443
log:
  format: text
`)

	cfg, err := config.Load(newFlags(t, "--http-addr", "127.0.0.1:9999", "--purge-invalid-cookie"), path)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Auth.PurgeInvalidCookie)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(newFlags(t), filepath.Join(t.TempDir(), "missing.yaml"))
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_INVALID")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "http: [unclosed")

	_, err := config.Load(newFlags(t), path)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_INVALID")
}

func TestValidate(t *testing.T) {
	setSecrets(t)

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		field  string
	}{
		{"empty http addr", func(c *config.Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "chatty" }, "log.level"},
		{"zero ttl", func(c *config.Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"touch beyond ttl", func(c *config.Config) { c.Session.TouchInterval = 48 * time.Hour }, "session.touch_interval"},
		{"zero sweep", func(c *config.Config) { c.Session.SweepInterval = 0 }, "session.sweep_interval"},
		{"zero remember max age", func(c *config.Config) { c.Cookie.RememberMaxAge = 0 }, "cookie.remember_max_age"},
		{"unknown store", func(c *config.Config) { c.Session.Store = "etcd" }, "session.store"},
		{"missing database url", func(c *config.Config) { c.Secrets.DatabaseURL = "" }, "DATABASE_URL"},
		{"short cookie secret", func(c *config.Config) { c.Secrets.CookieSecret = "short" }, "HOLOAUTH_COOKIE_SECRET"},
		{"redis without url", func(c *config.Config) {
			c.Session.Store = config.SessionStoreRedis
			c.Secrets.RedisURL = ""
		}, "REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(newFlags(t), "")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()

			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestValidate_MemoryStoreNeedsNoRedis(t *testing.T) {
	setSecrets(t)
	t.Setenv("REDIS_URL", "")

	cfg, err := config.Load(newFlags(t, "--session-store", "memory"), "")
	require.NoError(t, err)

	assert.NoError(t, cfg.Validate())
}
