// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/session"
	"github.com/holomush/holoauth/internal/web"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// T is the subset of testing.T and GinkgoT the helpers need.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

type envConfig struct {
	rotate   bool
	purge    bool
	sessions session.Store
	users    auth.UserRepository
	touch    *time.Duration
}

type envOption func(*envConfig)

func withRotation() envOption { return func(c *envConfig) { c.rotate = true } }

func withPurge() envOption { return func(c *envConfig) { c.purge = true } }

func withSessionStore(s session.Store) envOption {
	return func(c *envConfig) { c.sessions = s }
}

func withUserRepository(r auth.UserRepository) envOption {
	return func(c *envConfig) { c.users = r }
}

func withTouchInterval(d time.Duration) envOption {
	return func(c *envConfig) { c.touch = &d }
}

// env is a fully wired auth stack on in-memory stores.
type env struct {
	users    *memory.UserRepository
	creds    *auth.CredentialStore
	sessions *session.MemoryStore
	cookies  *web.CookieCodec
	metrics  *observability.Metrics
	server   *web.Server
	handler  http.Handler
}

func check(t T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newEnv(t T, opts ...envOption) *env {
	t.Helper()
	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		users:    memory.NewUserRepository(),
		sessions: session.NewMemoryStore(),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}

	var users auth.UserRepository = e.users
	if cfg.users != nil {
		users = cfg.users
	}
	var store session.Store = e.sessions
	if cfg.sessions != nil {
		store = cfg.sessions
	}

	var err error
	e.creds, err = auth.NewCredentialStoreWithLogger(users, auth.NewArgon2idHasher(), logger)
	check(t, err)
	service, err := auth.NewAuthServiceWithLogger(e.creds, logger)
	check(t, err)

	resolverOpts := []auth.ResolverOption{auth.WithResolverLogger(logger)}
	if cfg.rotate {
		resolverOpts = append(resolverOpts, auth.WithTokenRotation())
	}
	if cfg.purge {
		resolverOpts = append(resolverOpts, auth.WithInvalidCookiePurge())
	}
	resolver, err := auth.NewResolver(e.creds, resolverOpts...)
	check(t, err)
	sessionOpts := []session.Option{session.WithLogger(logger)}
	if cfg.touch != nil {
		sessionOpts = append(sessionOpts, session.WithTouchInterval(*cfg.touch))
	}
	manager, err := session.NewManager(store, sessionOpts...)
	check(t, err)
	e.cookies, err = web.NewCookieCodec(testSecret)
	check(t, err)

	e.server, err = web.NewServer(web.Config{
		Addr:               "127.0.0.1:0",
		Auth:               service,
		Resolver:           resolver,
		Sessions:           manager,
		Cookies:            e.cookies,
		Metrics:            e.metrics,
		Logger:             logger,
		PurgeInvalidCookie: cfg.purge,
	})
	check(t, err)
	e.handler = e.server.Handler()
	return e
}

func (e *env) createBeatrix(t T) *auth.User {
	t.Helper()
	user, err := e.creds.CreateUser(context.Background(), auth.NewUserParams{
		Name:     "beatrix",
		Email:    "test@example.com",
		Password: "password123",
	})
	check(t, err)
	return user
}

// browser replays cookies between requests the way a user agent would.
type browser struct {
	handler http.Handler
	jar     map[string]*http.Cookie
}

func (e *env) browser() *browser {
	return &browser{handler: e.handler, jar: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.jar, c.Name)
			continue
		}
		b.jar[c.Name] = c
	}
	return rec
}

func (b *browser) loginJSON(email, password string, remember bool) *httptest.ResponseRecorder {
	body := `{"email":"` + email + `","password":"` + password + `","remember_me":`
	if remember {
		body += "true}"
	} else {
		body += "false}"
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *browser) loginForm(values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) logout(method string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(method, "/logout", nil))
}

func (b *browser) forget(names ...string) {
	for _, n := range names {
		delete(b.jar, n)
	}
}

func (b *browser) cookie(name string) string {
	if c, ok := b.jar[name]; ok {
		return c.Value
	}
	return ""
}

// copyCookies returns a fresh browser holding only the named cookies.
func (b *browser) copyCookies(names ...string) *browser {
	nb := &browser{handler: b.handler, jar: make(map[string]*http.Cookie)}
	for _, n := range names {
		if c, ok := b.jar[n]; ok {
			nb.jar[n] = c
		}
	}
	return nb
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var errStoreDown = errors.New("store unavailable")

// brokenSessions fails every session store call.
type brokenSessions struct{}

func (brokenSessions) Create(context.Context, *session.Session) error { return errStoreDown }

func (brokenSessions) GetByTokenHash(context.Context, string) (*session.Session, error) {
	return nil, errStoreDown
}

func (brokenSessions) Update(context.Context, *session.Session) error { return errStoreDown }

func (brokenSessions) Delete(context.Context, ulid.ULID) error { return errStoreDown }

func (brokenSessions) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}

// flakyUsers wraps a repository and fails lookups while down is set.
type flakyUsers struct {
	*memory.UserRepository
	down bool
}

func (f *flakyUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if f.down {
		return nil, errStoreDown
	}
	return f.UserRepository.GetByEmail(ctx, email)
}

func (f *flakyUsers) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if f.down {
		return nil, errStoreDown
	}
	return f.UserRepository.GetByID(ctx, id)
}

// vanishingSessions deletes each session right after it is loaded while
// vanish is set, as a logout in another tab would.
type vanishingSessions struct {
	*session.MemoryStore
	vanish bool
}

func (v *vanishingSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	s, err := v.MemoryStore.GetByTokenHash(ctx, tokenHash)
	if err == nil && v.vanish {
		if err := v.MemoryStore.Delete(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	return s, err
}
