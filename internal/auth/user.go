// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password accepted when a new password is set.
const MinPasswordLength = 6

// emailRegex follows the HTML5 "valid e-mail address" grammar.
var emailRegex = regexp.MustCompile(
	"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+" +
		"@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?" +
		"(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$",
)

// User is an account that can authenticate.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	// RememberDigest is the digest of the outstanding remember-me token.
	// nil means no persistent login is active.
	RememberDigest *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasRememberDigest reports whether a persistent login is active.
func (u *User) HasRememberDigest() bool {
	return u.RememberDigest != nil && *u.RememberDigest != ""
}

// NewUserParams holds the inputs for creating a user.
type NewUserParams struct {
	Name     string
	Email    string
	Password string
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName validates a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code("USER_INVALID_NAME").Errorf("name can't be blank")
	}
	return nil
}

// ValidateEmail validates an email address against the email grammar.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_INVALID_EMAIL").Errorf("email can't be blank")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("USER_INVALID_EMAIL").
			With("email", email).
			Errorf("email is invalid")
	}
	return nil
}

// ValidatePassword validates a newly supplied password.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("USER_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password is too short (minimum is %d characters)", MinPasswordLength)
	}
	return nil
}

// NewUser validates params and builds a User with a hashed password.
// The email is normalized to lowercase.
func NewUser(params NewUserParams, hasher Hasher) (*User, error) {
	if err := ValidateName(params.Name); err != nil {
		return nil, err
	}
	email := NormalizeEmail(params.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(params.Password); err != nil {
		return nil, err
	}

	hash, err := hasher.Hash(params.Password)
	if err != nil {
		return nil, oops.Code("USER_HASH_FAILED").Wrap(err)
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Name:         strings.TrimSpace(params.Name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrEmailTaken if the email exists in any case.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateRememberDigest overwrites the remember digest. nil clears it.
	UpdateRememberDigest(ctx context.Context, id ulid.ULID, digest *string) error
}
