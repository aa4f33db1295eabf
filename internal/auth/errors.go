// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when a user with the same email (in any case) already exists.
var ErrEmailTaken = errors.New("email has already been taken")

// CodeStoreFailure marks errors caused by an unavailable record store.
// Callers map it to an infrastructure failure, never to invalid credentials.
const CodeStoreFailure = "AUTH_STORE_FAILURE"

// storeFailure wraps a repository error that is not a plain absence.
func storeFailure(operation string, err error) error {
	return oops.Code(CodeStoreFailure).
		With("operation", operation).
		Wrap(err)
}
