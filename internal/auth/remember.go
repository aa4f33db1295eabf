// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

// RememberTokenBytes is the amount of randomness in a remember token.
const RememberTokenBytes = 32

// RememberCookie is the client-held persistent login pair: the decrypted
// user id cookie and the plaintext remember token cookie.
type RememberCookie struct {
	UserID string
	Token  string
}

// Present reports whether both halves of the pair were supplied.
func (c *RememberCookie) Present() bool {
	return c != nil && c.UserID != "" && c.Token != ""
}

// GenerateRememberToken creates a URL-safe random token.
func GenerateRememberToken() (string, error) {
	b := make([]byte, RememberTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("REMEMBER_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RememberTokenBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
