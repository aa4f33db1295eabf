// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.UserRepository for tests and
// local development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// UserRepository is a map-backed auth.UserRepository. It is safe for
// concurrent use and hands out copies so callers never share records.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	key := strings.ToLower(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[key]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", key).Wrap(auth.ErrEmailTaken)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("duplicate user id")
	}
	r.byID[user.ID] = clone(user)
	r.byEmail[key] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(user), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(id, func(u *auth.User) {
		u.PasswordHash = passwordHash
	})
}

// UpdateRememberDigest overwrites the remember digest.
func (r *UserRepository) UpdateRememberDigest(_ context.Context, id ulid.ULID, digest *string) error {
	return r.update(id, func(u *auth.User) {
		if digest == nil {
			u.RememberDigest = nil
			return
		}
		d := *digest
		u.RememberDigest = &d
	})
}

// Delete removes a user. Used to simulate accounts deleted elsewhere.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.byEmail, strings.ToLower(user.Email))
	delete(r.byID, id)
	return nil
}

func (r *UserRepository) update(id ulid.ULID, fn func(*auth.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(user)
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.RememberDigest != nil {
		d := *u.RememberDigest
		c.RememberDigest = &d
	}
	return &c
}

var _ auth.UserRepository = (*UserRepository)(nil)
