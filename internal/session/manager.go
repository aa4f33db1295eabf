// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// Default manager settings.
const (
	DefaultTTL           = 24 * time.Hour
	DefaultTouchInterval = time.Minute
)

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// GetByTokenHash returns ErrNotFound when no session matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// Update writes UserID, ExpiresAt and LastSeenAt.
	Update(ctx context.Context, s *Session) error
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id ulid.ULID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CookieAction tells the HTTP layer what to do with the session cookie.
type CookieAction int

// Cookie actions.
const (
	CookieKeep CookieAction = iota
	CookieSet
	CookieClear
)

// SaveResult is returned by Manager.Save.
type SaveResult struct {
	Action CookieAction
	// Token is the raw token to write when Action is CookieSet.
	Token string
}

// Handle is the per-request view of a session. It is not safe for
// concurrent use.
type Handle struct {
	stored  *Session
	userID  *ulid.ULID
	dirty   bool
	renew   bool
	destroy bool
}

// UserID returns the signed-in user id, or nil.
func (h *Handle) UserID() *ulid.ULID {
	if h.userID == nil {
		return nil
	}
	id := *h.userID
	return &id
}

// SetUserID records id as the signed-in user and issues a new token on save.
func (h *Handle) SetUserID(id ulid.ULID) {
	h.userID = &id
	h.dirty = true
	h.renew = true
	h.destroy = false
}

// Destroy removes the session on save and clears the cookie.
func (h *Handle) Destroy() {
	h.userID = nil
	h.destroy = true
}

// IsNew reports whether no stored session backs this handle yet.
func (h *Handle) IsNew() bool {
	return h.stored == nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the idle lifetime of a session.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTouchInterval sets how stale LastSeenAt may get before a request
// extends the session.
func WithTouchInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.touch = d
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager loads and saves sessions against a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	touch  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("session store is required")
	}
	m := &Manager{
		store:  store,
		ttl:    DefaultTTL,
		touch:  DefaultTouchInterval,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the configured idle lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Load returns the session for token. An empty, unknown or expired token
// yields a fresh empty handle.
func (m *Manager) Load(ctx context.Context, token string) (*Handle, error) {
	if token == "" {
		return &Handle{}, nil
	}

	s, err := m.store.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return &Handle{}, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}

	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			errutil.LogError(m.logger, "expired session not deleted", err)
		}
		return &Handle{}, nil
	}
	return &Handle{stored: s, userID: s.UserID}, nil
}

// Save persists the handle and reports the cookie change the caller must
// make. A new token is issued for new sessions and after SetUserID; the
// previous session record is then deleted. A session deleted elsewhere since
// Load leaves the handle empty and clears the cookie.
func (m *Manager) Save(ctx context.Context, h *Handle) (SaveResult, error) {
	now := m.now()

	if h.destroy {
		if h.stored != nil {
			if err := m.store.Delete(ctx, h.stored.ID); err != nil {
				return SaveResult{}, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
			}
			h.stored = nil
		}
		h.dirty, h.renew, h.destroy = false, false, false
		return SaveResult{Action: CookieClear}, nil
	}

	if h.stored == nil && !h.dirty {
		return SaveResult{Action: CookieKeep}, nil
	}

	if h.renew || h.stored == nil {
		token, err := GenerateToken()
		if err != nil {
			return SaveResult{}, err
		}
		s := &Session{
			ID:         ulid.Make(),
			TokenHash:  HashToken(token),
			UserID:     h.UserID(),
			ExpiresAt:  now.Add(m.ttl),
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := m.store.Create(ctx, s); err != nil {
			return SaveResult{}, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
		}
		if h.stored != nil {
			if err := m.store.Delete(ctx, h.stored.ID); err != nil {
				errutil.LogError(m.logger, "replaced session not deleted", err)
			}
		}
		h.stored = s
		h.dirty, h.renew = false, false
		return SaveResult{Action: CookieSet, Token: token}, nil
	}

	if h.dirty || now.Sub(h.stored.LastSeenAt) >= m.touch {
		updated := h.stored.clone()
		updated.UserID = h.UserID()
		updated.ExpiresAt = now.Add(m.ttl)
		updated.LastSeenAt = now
		err := m.store.Update(ctx, updated)
		if errors.Is(err, ErrNotFound) {
			m.logger.DebugContext(ctx, "session removed before save", "id", h.stored.ID.String())
			h.stored, h.userID, h.dirty, h.renew = nil, nil, false, false
			return SaveResult{Action: CookieClear}, nil
		}
		if err != nil {
			return SaveResult{}, oops.Code("SESSION_UPDATE_FAILED").Wrap(err)
		}
		h.stored = updated
		h.dirty = false
	}
	return SaveResult{Action: CookieKeep}, nil
}

// CleanupExpired deletes sessions past their expiry.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").Wrap(err)
	}
	return n, nil
}

// RunSweeper calls CleanupExpired every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.CleanupExpired(ctx)
			if err != nil {
				errutil.LogError(m.logger, "session cleanup failed", err)
				continue
			}
			if n > 0 {
				m.logger.InfoContext(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}
