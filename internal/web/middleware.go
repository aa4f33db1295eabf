// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/session"
	"github.com/holomush/holoauth/pkg/errutil"
)

type contextKey struct{}

// requestState is the per-request auth state shared by the middleware and
// the handlers behind it.
type requestState struct {
	handle *session.Handle
	user   *auth.User
}

func withState(ctx context.Context, st *requestState) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(contextKey{}).(*requestState)
	return st
}

// CurrentUser returns the user resolved for the request, or nil.
func CurrentUser(ctx context.Context) *auth.User {
	if st := stateFrom(ctx); st != nil {
		return st.user
	}
	return nil
}

// Authenticate resolves the request identity from the session and the
// remember cookies, applies the resolution and stores it in the request
// context. A store failure answers 503.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		handle, err := s.sessions.Load(ctx, s.cookies.SessionToken(r))
		if err != nil {
			s.unavailable(w, r, "session", err)
			return
		}

		purge := false
		remember, err := s.cookies.Remember(r)
		if errors.Is(err, ErrInvalidCookie) {
			s.logger.DebugContext(ctx, "remember cookie does not decrypt")
			purge = s.purgeInvalid
		}

		res, err := s.resolver.Resolve(ctx, auth.SessionState{UserID: handle.UserID()}, remember)
		if err != nil {
			s.unavailable(w, r, "resolve", err)
			return
		}
		s.metrics.RecordResolution(res.Source.String())

		if res.SessionShouldUpdate {
			handle.SetUserID(res.User.ID)
		}
		if err := s.saveSession(w, r, handle); err != nil {
			s.unavailable(w, r, "session", err)
			return
		}

		if res.RotatedToken != "" {
			rc := &auth.RememberCookie{UserID: res.User.ID.String(), Token: res.RotatedToken}
			if err := s.cookies.SetRemember(w, rc); err != nil {
				s.unavailable(w, r, "cookie", err)
				return
			}
		}
		if res.ClearCookie || purge {
			s.cookies.ClearRemember(w)
		}

		user := res.User
		if res.Source == auth.SourceSession && handle.UserID() == nil {
			user = nil
		}

		st := &requestState{handle: handle, user: user}
		next.ServeHTTP(w, r.WithContext(withState(ctx, st)))
	})
}

// RequireAuthentication answers 401 unless Authenticate resolved a user.
func RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// saveSession persists the handle and applies the resulting cookie change.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, h *session.Handle) error {
	res, err := s.sessions.Save(r.Context(), h)
	if err != nil {
		return err
	}
	switch res.Action {
	case session.CookieSet:
		s.cookies.SetSessionToken(w, res.Token)
	case session.CookieClear:
		s.cookies.ClearSessionToken(w)
	}
	return nil
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, stage string, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, "auth request failed", err, "stage", stage)
	s.metrics.RecordStoreFailure(stage)
	writeError(w, http.StatusServiceUnavailable, "service unavailable")
}
