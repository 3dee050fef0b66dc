// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 2 * time.Hour

// Store keeps sessions between requests.
//
// # Description
//
// Get returns a copy the caller may mutate freely; changes are visible to
// other callers only after Save. Sessions expire TTL after their last
// Save. Get returns ErrSessionNotFound for unknown or expired ids.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a store that expires sessions after ttl and
// purges expired entries every ttl/2.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: gocache.New(ttl, ttl/2)}
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	if x, found := m.cache.Get(id); found {
		return x.(*Session).Snapshot(), nil
	}
	return nil, ErrSessionNotFound
}

// Save stores a copy of s and refreshes its expiry.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Set(s.ID, s.Snapshot(), gocache.DefaultExpiration)
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

// Len returns the number of unexpired sessions.
func (m *MemoryStore) Len() int { return m.cache.ItemCount() }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
