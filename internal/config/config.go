// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth settings from flags, an optional YAML file
// and the environment.
//
// Precedence, highest first: flags set on the command line, the YAML file,
// flag defaults. Secrets are only read from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/web"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Session  SessionConfig  `koanf:"session"`
	Cookie   CookieConfig   `koanf:"cookie"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Secrets  Secrets        `koanf:"-"`
}

// HTTPConfig configures the auth endpoints.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// SessionConfig configures server-side sessions.
type SessionConfig struct {
	Store         string        `koanf:"store"`
	TTL           time.Duration `koanf:"ttl"`
	TouchInterval time.Duration `koanf:"touch_interval"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// CookieConfig configures cookie attributes.
type CookieConfig struct {
	Secure         bool          `koanf:"secure"`
	RememberMaxAge time.Duration `koanf:"remember_max_age"`
}

// AuthConfig toggles optional remember-me behavior.
type AuthConfig struct {
	RotateRememberToken bool `koanf:"rotate_remember_token"`
	PurgeInvalidCookie  bool `koanf:"purge_invalid_cookie"`
}

// DatabaseConfig controls the startup connection.
type DatabaseConfig struct {
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	CookieSecret string `env:"HOLOAUTH_COOKIE_SECRET"`
}

// flagKeys maps command-line flags to configuration keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"http-addr":                 "http.addr",
	"metrics-addr":              "metrics.addr",
	"log-format":                "log.format",
	"log-level":                 "log.level",
	"session-store":             "session.store",
	"session-ttl":               "session.ttl",
	"session-touch-interval":    "session.touch_interval",
	"session-sweep-interval":    "session.sweep_interval",
	"cookie-secure":             "cookie.secure",
	"remember-max-age":          "cookie.remember_max_age",
	"rotate-remember-token":     "auth.rotate_remember_token",
	"purge-invalid-cookie":      "auth.purge_invalid_cookie",
	"database-connect-attempts": "database.connect_attempts",
	"database-connect-backoff":  "database.connect_backoff",
}

// RegisterFlags adds the configuration flags and their defaults to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "127.0.0.1:8080", "auth HTTP listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty to disable)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("session-store", SessionStorePostgres, "session store (postgres, redis or memory)")
	fs.Duration("session-ttl", 24*time.Hour, "idle lifetime of a session")
	fs.Duration("session-touch-interval", time.Minute, "how stale a session may get before a request extends it")
	fs.Duration("session-sweep-interval", 10*time.Minute, "how often expired sessions are deleted")
	fs.Bool("cookie-secure", false, "set the Secure attribute on cookies")
	fs.Duration("remember-max-age", web.DefaultRememberMaxAge, "lifetime of the remember-me cookies")
	fs.Bool("rotate-remember-token", false, "issue a new remember token on every cookie login")
	fs.Bool("purge-invalid-cookie", false, "delete remember cookies that do not match a user")
	fs.Uint64("database-connect-attempts", 10, "database pings before giving up at startup")
	fs.Duration("database-connect-backoff", 500*time.Millisecond, "initial delay between database pings")
}

// Load builds a Config from fs and, when path is not empty, a YAML file.
// Secrets come from the environment.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Addr == "":
		return invalid("http.addr", "must not be empty")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "must be json or text")
	case c.Session.TTL <= 0:
		return invalid("session.ttl", "must be positive")
	case c.Session.TouchInterval < 0 || c.Session.TouchInterval >= c.Session.TTL:
		return invalid("session.touch_interval", "must be at least zero and below session.ttl")
	case c.Session.SweepInterval <= 0:
		return invalid("session.sweep_interval", "must be positive")
	case c.Cookie.RememberMaxAge <= 0:
		return invalid("cookie.remember_max_age", "must be positive")
	case c.Secrets.DatabaseURL == "":
		return invalid("DATABASE_URL", "must be set")
	case len(c.Secrets.CookieSecret) < web.MinCookieSecretLength:
		return invalid("HOLOAUTH_COOKIE_SECRET", "must be at least 32 characters")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}

	switch c.Session.Store {
	case SessionStorePostgres, SessionStoreMemory:
	case SessionStoreRedis:
		if c.Secrets.RedisURL == "" {
			return invalid("REDIS_URL", "must be set when session.store is redis")
		}
	default:
		return invalid("session.store", "must be postgres, redis or memory")
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
