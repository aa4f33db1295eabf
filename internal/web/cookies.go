// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Cookie names.
const (
	SessionCookie        = "holoauth_session"
	RememberUserIDCookie = "remember_user_id"
	RememberTokenCookie  = "remember_token"
)

// DefaultRememberMaxAge is how long remember cookies live.
const DefaultRememberMaxAge = 365 * 24 * time.Hour

// MinCookieSecretLength is the shortest accepted cookie secret.
const MinCookieSecretLength = 32

// ErrInvalidCookie is returned when an encrypted cookie does not decrypt.
var ErrInvalidCookie = errors.New("invalid cookie")

// CookieOption configures a CookieCodec.
type CookieOption func(*CookieCodec)

// WithSecureCookies sets the Secure attribute on every cookie written.
func WithSecureCookies(secure bool) CookieOption {
	return func(c *CookieCodec) {
		c.secure = secure
	}
}

// WithRememberMaxAge sets the lifetime of the remember cookie pair.
func WithRememberMaxAge(d time.Duration) CookieOption {
	return func(c *CookieCodec) {
		if d > 0 {
			c.rememberMaxAge = d
		}
	}
}

// CookieCodec reads and writes the session and remember cookies. The
// remember user id is sealed with AES-256-GCM; the cookie name is bound as
// additional data so a value cannot be replayed under another name.
type CookieCodec struct {
	aead           cipher.AEAD
	secure         bool
	rememberMaxAge time.Duration
}

// NewCookieCodec derives the encryption key from secret.
func NewCookieCodec(secret string, opts ...CookieOption) (*CookieCodec, error) {
	if len(secret) < MinCookieSecretLength {
		return nil, oops.Code("COOKIE_SECRET_TOO_SHORT").
			With("min_length", MinCookieSecretLength).
			Errorf("cookie secret must be at least %d characters", MinCookieSecretLength)
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, oops.Code("COOKIE_CIPHER_FAILED").Wrap(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, oops.Code("COOKIE_CIPHER_FAILED").Wrap(err)
	}

	c := &CookieCodec{aead: aead, rememberMaxAge: DefaultRememberMaxAge}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RememberMaxAge returns the remember cookie lifetime.
func (c *CookieCodec) RememberMaxAge() time.Duration {
	return c.rememberMaxAge
}

// SessionToken returns the raw session token, or "".
func (c *CookieCodec) SessionToken(r *http.Request) string {
	return cookieValue(r, SessionCookie)
}

// SetSessionToken writes the session cookie. It has no max-age and ends
// with the browser session.
func (c *CookieCodec) SetSessionToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(SessionCookie, token, 0))
}

// ClearSessionToken deletes the session cookie.
func (c *CookieCodec) ClearSessionToken(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(SessionCookie, "", -1))
}

// Remember reads the remember cookie pair. It returns nil when either half
// is missing and ErrInvalidCookie when the user id does not decrypt.
func (c *CookieCodec) Remember(r *http.Request) (*auth.RememberCookie, error) {
	sealed := cookieValue(r, RememberUserIDCookie)
	token := cookieValue(r, RememberTokenCookie)
	if sealed == "" || token == "" {
		return nil, nil
	}
	userID, err := c.open(RememberUserIDCookie, sealed)
	if err != nil {
		return nil, err
	}
	return &auth.RememberCookie{UserID: userID, Token: token}, nil
}

// SetRemember writes the remember cookie pair.
func (c *CookieCodec) SetRemember(w http.ResponseWriter, rc *auth.RememberCookie) error {
	sealed, err := c.seal(RememberUserIDCookie, rc.UserID)
	if err != nil {
		return err
	}
	maxAge := int(c.rememberMaxAge / time.Second)
	http.SetCookie(w, c.cookie(RememberUserIDCookie, sealed, maxAge))
	http.SetCookie(w, c.cookie(RememberTokenCookie, rc.Token, maxAge))
	return nil
}

// ClearRemember deletes the remember cookie pair.
func (c *CookieCodec) ClearRemember(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(RememberUserIDCookie, "", -1))
	http.SetCookie(w, c.cookie(RememberTokenCookie, "", -1))
}

func (c *CookieCodec) cookie(name, value string, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		ck.Expires = time.Unix(0, 0)
	}
	return ck
}

func (c *CookieCodec) seal(name, value string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", oops.Code("COOKIE_ENCRYPT_FAILED").With("cookie", name).Wrap(err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *CookieCodec) open(name, value string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return "", ErrInvalidCookie
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", ErrInvalidCookie
	}
	return string(plain), nil
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
