// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// dummyPasswordHash is verified when no user matches an email so that both
// branches of a login cost one hash computation.
//
//nolint:gosec // G101: intentionally fake hash, never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialStore owns user lookup and every operation on raw secrets.
// It is safe for concurrent use.
type CredentialStore struct {
	users  UserRepository
	hasher Hasher
	logger *slog.Logger
}

// NewCredentialStore creates a CredentialStore that logs to slog.Default().
func NewCredentialStore(users UserRepository, hasher Hasher) (*CredentialStore, error) {
	return NewCredentialStoreWithLogger(users, hasher, slog.Default())
}

// NewCredentialStoreWithLogger creates a CredentialStore with a custom logger.
func NewCredentialStoreWithLogger(users UserRepository, hasher Hasher, logger *slog.Logger) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("logger is required")
	}
	return &CredentialStore{users: users, hasher: hasher, logger: logger}, nil
}

// CreateUser validates and stores a new user.
// Returns ErrEmailTaken when the email is already registered in any case.
func (c *CredentialStore) CreateUser(ctx context.Context, params NewUserParams) (*User, error) {
	user, err := NewUser(params, c.hasher)
	if err != nil {
		return nil, err
	}
	if err := c.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(err)
		}
		return nil, storeFailure("create user", err)
	}
	return user, nil
}

// FindByEmail looks up a user by email after normalizing it to lowercase.
// Returns nil, nil if no user matches.
func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := c.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("get user by email", err)
	}
	return user, nil
}

// FindByID looks up a user by ID. Returns nil, nil if no user matches.
func (c *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := c.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("get user by id", err)
	}
	return user, nil
}

// VerifyPassword reports whether candidate matches the user's password hash.
// A nil user or a malformed hash yields false.
func (c *CredentialStore) VerifyPassword(ctx context.Context, user *User, candidate string) bool {
	if user == nil {
		return false
	}
	ok, err := c.hasher.Verify(candidate, user.PasswordHash)
	if err != nil {
		errutil.LogErrorContext(ctx, c.logger, "password hash could not be verified", oops.With("user_id", user.ID.String()).Wrap(err))
		return false
	}
	return ok
}

// verifyDummy burns one hash verification so unknown emails cost the same
// as wrong passwords.
func (c *CredentialStore) verifyDummy(candidate string) {
	_, _ = c.hasher.Verify(candidate, dummyPasswordHash) //nolint:errcheck // result is discarded by design
}

// upgradePassword re-hashes a legacy password hash with argon2id.
// Failures are logged; the login that triggered it still succeeds.
func (c *CredentialStore) upgradePassword(ctx context.Context, user *User, password string) {
	if !c.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, c.logger, "password rehash failed", err)
		return
	}
	if err := c.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		errutil.LogErrorContext(ctx, c.logger, "password upgrade not persisted", err)
		return
	}
	user.PasswordHash = hash
	c.logger.InfoContext(ctx, "upgraded legacy password hash", "user_id", user.ID.String())
}

// GenerateRememberToken creates a new raw remember token.
func (c *CredentialStore) GenerateRememberToken() (string, error) {
	return GenerateRememberToken()
}

// SetRememberToken stores the digest of rawToken, replacing any prior digest.
func (c *CredentialStore) SetRememberToken(ctx context.Context, user *User, rawToken string) error {
	digest, err := c.hasher.Hash(rawToken)
	if err != nil {
		return oops.Code("REMEMBER_DIGEST_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if err := c.users.UpdateRememberDigest(ctx, user.ID, &digest); err != nil {
		return storeFailure("set remember digest", err)
	}
	user.RememberDigest = &digest
	return nil
}

// ClearRememberToken removes the remember digest.
func (c *CredentialStore) ClearRememberToken(ctx context.Context, user *User) error {
	if err := c.users.UpdateRememberDigest(ctx, user.ID, nil); err != nil {
		return storeFailure("clear remember digest", err)
	}
	user.RememberDigest = nil
	return nil
}

// VerifyRememberToken reports whether candidate matches the stored digest.
// Returns false without comparing when no digest is set.
func (c *CredentialStore) VerifyRememberToken(ctx context.Context, user *User, candidate string) bool {
	if user == nil || !user.HasRememberDigest() {
		return false
	}
	ok, err := c.hasher.Verify(candidate, *user.RememberDigest)
	if err != nil {
		errutil.LogErrorContext(ctx, c.logger, "remember digest could not be verified", oops.With("user_id", user.ID.String()).Wrap(err))
		return false
	}
	return ok
}
