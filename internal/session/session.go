// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session provides server-side browser sessions keyed by an opaque
// cookie token. Only the SHA-256 of a token is ever stored.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenBytes is the number of random bytes in a session token.
const TokenBytes = 32

// ErrNotFound is returned by stores when no session matches.
var ErrNotFound = errors.New("session not found")

// Session is a stored browser session.
type Session struct {
	ID         ulid.ULID
	TokenHash  string
	UserID     *ulid.ULID
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// clone returns a deep copy so stores never share UserID pointers.
func (s *Session) clone() *Session {
	c := *s
	if s.UserID != nil {
		id := *s.UserID
		c.UserID = &id
	}
	return &c
}

// GenerateToken returns a new random hex-encoded session token.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
