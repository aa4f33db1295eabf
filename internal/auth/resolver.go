// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/holomush/holoauth/internal/auth"

// IdentitySource records how a request identity was established.
type IdentitySource int

// Identity sources.
const (
	SourceNone IdentitySource = iota
	SourceSession
	SourceCookie
)

// String returns the metric/log label for the source.
func (s IdentitySource) String() string {
	switch s {
	case SourceSession:
		return "session"
	case SourceCookie:
		return "cookie"
	default:
		return "none"
	}
}

// SessionState is the slice of server-side session data the resolver reads.
type SessionState struct {
	UserID *ulid.ULID
}

// Resolution is the outcome of resolving a request identity. The resolver
// never writes the session or cookies itself; the HTTP boundary applies the
// flags below.
type Resolution struct {
	// User is nil when the request is unauthenticated.
	User   *User
	Source IdentitySource

	// SessionShouldUpdate asks the caller to store User.ID in the session.
	SessionShouldUpdate bool

	// RotatedToken, when set, is a fresh raw remember token whose digest is
	// already stored. The caller must write it to the remember cookie.
	RotatedToken string

	// ClearCookie asks the caller to delete the remember cookie pair.
	ClearCookie bool
}

// Resolved reports whether an identity is available.
func (r Resolution) Resolved() bool {
	return r.User != nil
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTokenRotation issues a new remember token on every cookie login.
func WithTokenRotation() ResolverOption {
	return func(r *Resolver) {
		r.rotate = true
	}
}

// WithInvalidCookiePurge asks for the remember cookie to be deleted when it
// definitely does not match a user.
func WithInvalidCookiePurge() ResolverOption {
	return func(r *Resolver) {
		r.purge = true
	}
}

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver determines the authenticated user for a request.
type Resolver struct {
	creds  *CredentialStore
	rotate bool
	purge  bool
	logger *slog.Logger
	tracer trace.Tracer
}

// NewResolver creates a Resolver backed by the credential store.
func NewResolver(creds *CredentialStore, opts ...ResolverOption) (*Resolver, error) {
	if creds == nil {
		return nil, oops.Code("RESOLVER_INVALID_CONFIG").Errorf("credential store is required")
	}
	r := &Resolver{
		creds:  creds,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve finds the identity for a request. A session user id takes
// precedence over the remember cookie; a stale session user id resolves to
// unauthenticated without consulting the cookie. Only record store failures
// are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, state SessionState, cookie *RememberCookie) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, state, cookie)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return Resolution{}, err
	}
	span.SetAttributes(attribute.String("auth.source", res.Source.String()))
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, state SessionState, cookie *RememberCookie) (Resolution, error) {
	if state.UserID != nil {
		user, err := r.creds.FindByID(ctx, *state.UserID)
		if err != nil {
			return Resolution{}, err
		}
		if user == nil {
			r.logger.DebugContext(ctx, "session references unknown user", "user_id", state.UserID.String())
			return Resolution{}, nil
		}
		return Resolution{User: user, Source: SourceSession}, nil
	}

	if !cookie.Present() {
		return Resolution{}, nil
	}
	return r.resolveCookie(ctx, cookie)
}

func (r *Resolver) resolveCookie(ctx context.Context, cookie *RememberCookie) (Resolution, error) {
	mismatch := Resolution{ClearCookie: r.purge}

	id, err := ulid.Parse(cookie.UserID)
	if err != nil {
		r.logger.DebugContext(ctx, "remember cookie has malformed user id")
		return mismatch, nil
	}

	user, err := r.creds.FindByID(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	if user == nil {
		r.logger.DebugContext(ctx, "remember cookie references unknown user", "user_id", id.String())
		return mismatch, nil
	}

	if !r.creds.VerifyRememberToken(ctx, user, cookie.Token) {
		r.logger.InfoContext(ctx, "remember token rejected", "user_id", id.String())
		return mismatch, nil
	}

	res := Resolution{User: user, Source: SourceCookie, SessionShouldUpdate: true}

	if r.rotate {
		token, err := r.creds.GenerateRememberToken()
		if err != nil {
			return Resolution{}, err
		}
		if err := r.creds.SetRememberToken(ctx, user, token); err != nil {
			return Resolution{}, err
		}
		res.RotatedToken = token
	}

	r.logger.InfoContext(ctx, "session restored from remember cookie", "user_id", id.String(), "rotated", r.rotate)
	return res, nil
}
