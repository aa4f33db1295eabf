// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/holoauth/internal/auth"
)

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test finishes.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID provides a mock function.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// GetByEmail provides a mock function.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// UpdatePassword provides a mock function.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// UpdateRememberDigest provides a mock function.
func (m *MockUserRepository) UpdateRememberDigest(ctx context.Context, id ulid.ULID, digest *string) error {
	args := m.Called(ctx, id, digest)
	return args.Error(0)
}

// MockHasher is a mock of auth.Hasher.
type MockHasher struct {
	mock.Mock
}

// NewMockHasher creates a MockHasher whose expectations are asserted when
// the test finishes.
func NewMockHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockHasher {
	m := &MockHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockHasher) Hash(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

// Verify provides a mock function.
func (m *MockHasher) Verify(secret, digest string) (bool, error) {
	args := m.Called(secret, digest)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade provides a mock function.
func (m *MockHasher) NeedsUpgrade(digest string) bool {
	args := m.Called(digest)
	return args.Bool(0)
}

var (
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.Hasher         = (*MockHasher)(nil)
)
