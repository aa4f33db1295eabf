// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/store"
)

// PostgresStore keeps sessions in the web_sessions table.
type PostgresStore struct {
	pool store.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool store.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a session.
func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO web_sessions (id, token_hash, user_id, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		s.ID.String(),
		s.TokenHash,
		userIDArg(s.UserID),
		s.ExpiresAt,
		s.CreatedAt,
		s.LastSeenAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			With("id", s.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (p *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, token_hash, user_id, expires_at, created_at, last_seen_at
		FROM web_sessions
		WHERE token_hash = $1
	`, tokenHash)

	var (
		idStr     string
		userIDStr *string
		s         Session
	)
	err := row.Scan(&idStr, &s.TokenHash, &userIDStr, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if s.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if userIDStr != nil {
		uid, err := ulid.Parse(*userIDStr)
		if err != nil {
			return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", *userIDStr).Wrap(err)
		}
		s.UserID = &uid
	}
	return &s, nil
}

// Update writes the mutable session columns.
func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE web_sessions SET user_id = $2, expires_at = $3, last_seen_at = $4
		WHERE id = $1
	`, s.ID.String(), userIDArg(s.UserID), s.ExpiresAt, s.LastSeenAt)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "update web_session").
			With("id", s.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", s.ID.String()).
			Wrap(ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (p *PostgresStore) Delete(ctx context.Context, id ulid.ULID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM web_sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes sessions that expired at or before now.
func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := p.pool.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired web_sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func userIDArg(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

var _ Store = (*PostgresStore)(nil)
