// Package cache provides the read-through cache used for computed user
// statistics and for refresh-token storage. Cache failures are never fatal:
// callers treat a miss and an error the same way and fall back to computing
// from the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Client is the minimal cache surface the services need.
type Client interface {
	// GetJSON unmarshals the cached value for key into dest. It returns
	// false when the key is absent or the read fails.
	GetJSON(ctx context.Context, key string, dest any) bool
	// SetJSON stores the JSON encoding of value under key with a TTL.
	// Failures are reported but callers are free to ignore them.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes a single key.
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching a glob pattern such as
	// "stats:42:*".
	DeletePattern(ctx context.Context, pattern string) error
	// GetString reads a raw string value; ok is false on a miss.
	GetString(ctx context.Context, key string) (string, bool)
	// SetString stores a raw string value with a TTL.
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
}

// StatsKey builds the cache key for one user's computed stats view.
// Views in use: "summary", "full", "achievements".
func StatsKey(userID, view string) string {
	return fmt.Sprintf("stats:%s:%s", userID, view)
}

// StatsPattern matches every stats view for one user.
func StatsPattern(userID string) string {
	return fmt.Sprintf("stats:%s:*", userID)
}

// RefreshTokenKey builds the key a user's current refresh token is stored
// under. One token per user; issuing a new one replaces the old.
func RefreshTokenKey(userID string) string {
	return fmt.Sprintf("refresh_token:%s", userID)
}

// Memory is an in-process Client used in tests and when no cache backend is
// configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

var _ Client = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) GetJSON(ctx context.Context, key string, dest any) bool {
	payload, ok := m.get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(payload, dest) == nil
}

func (m *Memory) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	m.set(key, payload, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) DeletePattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) GetString(ctx context.Context, key string) (string, bool) {
	payload, ok := m.get(key)
	if !ok {
		return "", false
	}
	return string(payload), true
}

func (m *Memory) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	m.set(key, []byte(value), ttl)
	return nil
}

func (m *Memory) get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.payload, true
}

func (m *Memory) set(key string, payload []byte, ttl time.Duration) {
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}
