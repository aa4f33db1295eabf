// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*Session
	byToken map[string]ulid.ULID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[ulid.ULID]*Session),
		byToken: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of s.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[s.TokenHash]; ok {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already in use")
	}
	m.byID[s.ID] = s.clone()
	m.byToken[s.TokenHash] = s.ID
	return nil
}

// GetByTokenHash returns a copy of the matching session.
func (m *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].clone(), nil
}

// Update replaces the mutable fields of a stored session.
func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	next := s.clone()
	next.TokenHash = cur.TokenHash
	m.byID[s.ID] = next
	return nil
}

// Delete removes a session; unknown ids are ignored.
func (m *MemoryStore) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		delete(m.byToken, s.TokenHash)
		delete(m.byID, id)
	}
	return nil
}

// DeleteExpired removes sessions expired at now.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.Expired(now) {
			delete(m.byToken, s.TokenHash)
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

var _ Store = (*MemoryStore)(nil)
