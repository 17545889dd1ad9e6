// Package cache provides lookup-cache backends for the asset deployer:
// an in-process TTL map for single-process use and tests, and a NATS
// JetStream key-value bucket shared across deployer processes.
//
// Both satisfy the deployer's Cache interface. No backend offers
// compare-and-set: all writers for the same key write the same value, so
// last-writer-wins is acceptable.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process cache with per-entry TTL. Expired entries are
// dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the live value for key, if any.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if m == nil {
		return "", false, errors.New("nil cache")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Save stores value under key for ttl.
func (m *Memory) Save(_ context.Context, key, value string, ttl time.Duration) error {
	if m == nil {
		return errors.New("nil cache")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}
