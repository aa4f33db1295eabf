// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web is the HTTP boundary for login, logout and request identity.
// It owns cookies and the session handle; the auth package only reports
// what must change.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/session"
)

// Config holds the dependencies of a Server.
type Config struct {
	Addr     string
	Auth     *auth.Service
	Resolver *auth.Resolver
	Sessions *session.Manager
	Cookies  *CookieCodec
	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// PurgeInvalidCookie clears a remember pair whose user id does not
	// decrypt. It mirrors auth.WithInvalidCookiePurge.
	PurgeInvalidCookie bool
}

// Server serves the auth endpoints.
type Server struct {
	addr         string
	auth         *auth.Service
	resolver     *auth.Resolver
	sessions     *session.Manager
	cookies      *CookieCodec
	metrics      *observability.Metrics
	logger       *slog.Logger
	purgeInvalid bool

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer validates cfg and creates a Server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Auth == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	case cfg.Resolver == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("resolver is required")
	case cfg.Sessions == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("session manager is required")
	case cfg.Cookies == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("cookie codec is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         cfg.Addr,
		auth:         cfg.Auth,
		resolver:     cfg.Resolver,
		sessions:     cfg.Sessions,
		cookies:      cfg.Cookies,
		metrics:      cfg.Metrics,
		logger:       logger,
		purgeInvalid: cfg.PurgeInvalidCookie,
	}, nil
}

// Handler returns the routes, all behind Authenticate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("DELETE /logout", s.handleLogout)
	mux.Handle("GET /me", RequireAuthentication(http.HandlerFunc(s.handleMe)))
	return s.Authenticate(mux)
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_web_server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
