// Package snapshot mirrors the in-process cache entry to Redis so a restarted
// instance can warm its slot without a provider call.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/keys"
)

// Mirror persists at most one entry per namespace.
type Mirror interface {
	Save(ctx context.Context, e *cache.Entry) error
	Load(ctx context.Context) (*cache.Entry, error)
	Delete(ctx context.Context) error
}

// KV is the subset of redisstore.Client the mirror needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type redisMirror struct {
	kv  KV
	key string
	ttl time.Duration
	now func() time.Time
}

type Option func(*redisMirror)

func WithClock(now func() time.Time) Option {
	return func(m *redisMirror) { m.now = now }
}

func NewRedisMirror(kv KV, namespace string, ttl time.Duration, opts ...Option) Mirror {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	m := &redisMirror{
		kv:  kv,
		key: keys.Snapshot(namespace),
		ttl: ttl,
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Save writes e with the TTL it has left. An entry that is already expired is
// not written.
func (m *redisMirror) Save(ctx context.Context, e *cache.Entry) error {
	if e == nil {
		return nil
	}
	remaining := m.ttl - m.now().Sub(e.FetchedAt)
	if remaining <= 0 {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := m.kv.Set(ctx, m.key, body, remaining); err != nil {
		return fmt.Errorf("snapshot save %q: %w", m.key, err)
	}
	return nil
}

// Load returns the mirrored entry, or nil when none is stored.
func (m *redisMirror) Load(ctx context.Context) (*cache.Entry, error) {
	body, ok, err := m.kv.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("snapshot load %q: %w", m.key, err)
	}
	if !ok {
		return nil, nil
	}
	var e cache.Entry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("snapshot decode %q: %w", m.key, err)
	}
	return &e, nil
}

func (m *redisMirror) Delete(ctx context.Context) error {
	if err := m.kv.Del(ctx, m.key); err != nil {
		return fmt.Errorf("snapshot delete %q: %w", m.key, err)
	}
	return nil
}
