// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const (
	redisTokenPrefix = "holoauth:session:"
	redisIDPrefix    = "holoauth:session-id:"
)

// redisRecord is the JSON value stored under a token key.
type redisRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// RedisStore keeps sessions in Redis. Keys expire with the session, so
// DeleteExpired has nothing to do.
type RedisStore struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func tokenKey(tokenHash string) string { return redisTokenPrefix + tokenHash }

func idKey(id ulid.ULID) string { return redisIDPrefix + id.String() }

func (r *RedisStore) ttl(s *Session) time.Duration {
	return max(s.ExpiresAt.Sub(r.now()), time.Millisecond)
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	rec := redisRecord{
		ID:         s.ID.String(),
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
	if s.UserID != nil {
		rec.UserID = s.UserID.String()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	ttl := r.ttl(s)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(s.TokenHash), payload, ttl)
		pipe.Set(ctx, idKey(s.ID), s.TokenHash, ttl)
		return nil
	})
	return err
}

// Create stores a session under its token hash.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if err := r.write(ctx, s); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("id", s.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *RedisStore) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := r.rdb.Get(ctx, tokenKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").Wrap(err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	s := &Session{
		TokenHash:  tokenHash,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
	}
	if s.ID, err = ulid.Parse(rec.ID); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	if rec.UserID != "" {
		uid, err := ulid.Parse(rec.UserID)
		if err != nil {
			return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", rec.UserID).Wrap(err)
		}
		s.UserID = &uid
	}
	return s, nil
}

// Update rewrites a session and resets its key expiry.
func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	tokenHash, err := r.rdb.Get(ctx, idKey(s.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return oops.Code("SESSION_NOT_FOUND").With("id", s.ID.String()).Wrap(ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("id", s.ID.String()).Wrap(err)
	}

	next := s.clone()
	next.TokenHash = tokenHash
	if err := r.write(ctx, next); err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("id", s.ID.String()).Wrap(err)
	}
	return nil
}

// Delete removes both keys of a session.
func (r *RedisStore) Delete(ctx context.Context, id ulid.ULID) error {
	tokenHash, err := r.rdb.Get(ctx, idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if err := r.rdb.Del(ctx, idKey(id), tokenKey(tokenHash)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired always reports zero; Redis expires keys itself.
func (r *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
