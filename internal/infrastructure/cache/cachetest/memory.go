// Package cachetest provides an in-memory cache.RedisClient for tests.
package cachetest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cryptogate/gateway_service/internal/infrastructure/cache"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a map-backed RedisClient. Values are stored as JSON so round
// trips behave like the real client.
type Memory struct {
	mu    sync.Mutex
	items map[string]item
	Now   func() time.Time
}

var _ cache.RedisClient = (*Memory)(nil)

// New returns an empty store
func New() *Memory {
	return &Memory{items: make(map[string]item), Now: time.Now}
}

func (m *Memory) live(key string) (item, bool) {
	it, ok := m.items[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && !m.Now().Before(it.expiresAt) {
		delete(m.items, key)
		return item{}, false
	}
	return it, true
}

func (m *Memory) put(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	it := item{value: data}
	if ttl > 0 {
		it.expiresAt = m.Now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, value, ttl)
}

func (m *Memory) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	it, ok := m.live(key)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("key '%s': %w", key, cache.ErrCacheMiss)
	}
	return json.Unmarshal(it.value, dest)
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	return true, m.put(key, value, ttl)
}

func (m *Memory) DelIfEqual(_ context.Context, key string, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	if !ok || !bytes.Equal(it.value, data) {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.live(key); ok {
		it.expiresAt = m.Now().Add(ttl)
		m.items[key] = it
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.items {
		if _, ok := m.live(k); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Scan returns every match in a single step
func (m *Memory) Scan(ctx context.Context, _ uint64, match string, _ int64) ([]string, uint64, error) {
	keys, err := m.Keys(ctx, match)
	return keys, 0, err
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len reports the number of live keys
func (m *Memory) Len() int {
	keys, _ := m.Keys(context.Background(), "*")
	return len(keys)
}
