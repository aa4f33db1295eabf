// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/session"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/web"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP server",
		Long: `Start the auth HTTP server (login, logout, me), the metrics and health
server, and the expired session sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, deps.withDefaults())
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *Deps) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.Setup(logging.Options{
		Service: "holoauth",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := deps.PoolFactory(ctx, cfg.Secrets.DatabaseURL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	sessionStore, rdb, err := newSessionStore(ctx, cfg, pool, deps)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
	}

	creds, err := auth.NewCredentialStoreWithLogger(postgres.NewUserRepository(pool), auth.NewArgon2idHasher(), logger)
	if err != nil {
		return err
	}
	service, err := auth.NewAuthServiceWithLogger(creds, logger)
	if err != nil {
		return err
	}
	resolverOpts := []auth.ResolverOption{auth.WithResolverLogger(logger)}
	if cfg.Auth.RotateRememberToken {
		resolverOpts = append(resolverOpts, auth.WithTokenRotation())
	}
	if cfg.Auth.PurgeInvalidCookie {
		resolverOpts = append(resolverOpts, auth.WithInvalidCookiePurge())
	}
	resolver, err := auth.NewResolver(creds, resolverOpts...)
	if err != nil {
		return err
	}
	manager, err := session.NewManager(sessionStore,
		session.WithTTL(cfg.Session.TTL),
		session.WithTouchInterval(cfg.Session.TouchInterval),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	cookies, err := web.NewCookieCodec(cfg.Secrets.CookieSecret,
		web.WithSecureCookies(cfg.Cookie.Secure),
		web.WithRememberMaxAge(cfg.Cookie.RememberMaxAge),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readinessChecker(pool, rdb), logger)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		metrics = obsServer.Metrics()
	}

	webServer, err := web.NewServer(web.Config{
		Addr:               cfg.HTTP.Addr,
		Auth:               service,
		Resolver:           resolver,
		Sessions:           manager,
		Cookies:            cookies,
		Metrics:            metrics,
		Logger:             logger,
		PurgeInvalidCookie: cfg.Auth.PurgeInvalidCookie,
	})
	if err != nil {
		stopServer(obsServer, logger)
		return err
	}
	webErrChan, err := webServer.Start()
	if err != nil {
		stopServer(obsServer, logger)
		return err
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web", logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.RunSweeper(ctx, cfg.Session.SweepInterval)
	}()

	cmd.Println("holoauth started")
	logger.Info("holoauth ready",
		"http_addr", webServer.Addr(),
		"session_store", cfg.Session.Store,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServer(webServer, logger)
	stopServer(obsServer, logger)
	cancel()
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

// newSessionStore builds the configured session store. The Redis client is
// returned so the caller can close it; it is nil for other stores.
func newSessionStore(ctx context.Context, cfg *config.Config, pool DatabasePool, deps *Deps) (session.Store, redis.UniversalClient, error) {
	switch cfg.Session.Store {
	case config.SessionStoreMemory:
		return session.NewMemoryStore(), nil, nil
	case config.SessionStoreRedis:
		rdb, err := deps.RedisFactory(cfg.Secrets.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
		}
		return session.NewRedisStore(rdb), rdb, nil
	default:
		return session.NewPostgresStore(pool), nil, nil
	}
}

// readinessChecker reports ready while the database and, when configured,
// Redis answer a ping.
func readinessChecker(pool DatabasePool, rdb redis.UniversalClient) observability.ReadinessChecker {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return oops.Code("DB_NOT_READY").Wrap(err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return oops.Code("REDIS_NOT_READY").Wrap(err)
			}
		}
		return nil
	}
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when either an error is received, the channel is closed, or the
// context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
