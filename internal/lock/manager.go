package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotHeld is returned when releasing a key this manager does not hold.
var ErrNotHeld = fmt.Errorf("lock not held by this owner")

// Manager coordinates per-symbol locks over a Store. Each acquisition gets
// its own UUID owner token; release succeeds only while that exact token is
// still the current holder.
type Manager struct {
	store  Store
	prefix string
	log    zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	held map[string]string // key -> stored payload for owner-checked release
}

// NewManager builds a manager namespacing its keys under prefix.
func NewManager(store Store, prefix string, log zerolog.Logger) *Manager {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Manager{
		store:  store,
		prefix: prefix,
		log:    log,
		now:    time.Now,
		held:   make(map[string]string),
	}
}

func (m *Manager) storageKey(key string) string { return m.prefix + key }

// Acquire attempts a single atomic set-if-not-exists with expiry. It returns
// false without error when the lock is already held elsewhere.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	value, err := encodePayload(uuid.NewString(), ttl, m.now())
	if err != nil {
		return false, fmt.Errorf("encode lock payload: %w", err)
	}
	ok, err := m.store.SetNX(ctx, m.storageKey(key), value, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	m.mu.Lock()
	m.held[key] = value
	m.mu.Unlock()
	return true, nil
}

// AcquireWithRetry retries a bounded number of times with a fixed delay. It
// never blocks indefinitely: maxRetries exhausted means false.
func (m *Manager) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		ok, err := m.Acquire(ctx, key, ttl)
		if err != nil || ok {
			return ok, err
		}
		if attempt >= maxRetries {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release frees a lock this manager acquired. The delete is atomic and
// compares the stored payload, so a lock that expired and was re-acquired by
// another owner is left intact (ErrNotHeld).
func (m *Manager) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	value, found := m.held[key]
	delete(m.held, key)
	m.mu.Unlock()
	if !found {
		return fmt.Errorf("release %s: %w", key, ErrNotHeld)
	}
	ok, err := m.store.CompareAndDelete(ctx, m.storageKey(key), value)
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("release %s: %w", key, ErrNotHeld)
	}
	return nil
}

// ForceRelease unconditionally deletes a lock. Operational cleanup only.
func (m *Manager) ForceRelease(ctx context.Context, key string) error {
	m.log.Warn().Str("key", key).Msg("force releasing lock")
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return m.store.Delete(ctx, m.storageKey(key))
}

// IsLocked reports whether the key currently has a holder.
func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	info, err := m.LockInfo(ctx, key)
	if err != nil {
		return false, err
	}
	return info != nil && !info.Expired(m.now()), nil
}

// LockInfo returns holder metadata, or nil when the key is free.
func (m *Manager) LockInfo(ctx context.Context, key string) (*Info, error) {
	raw, found, err := m.store.Get(ctx, m.storageKey(key))
	if err != nil || !found {
		return nil, err
	}
	p, err := decodePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", key, err)
	}
	return &Info{
		Key:       key,
		Owner:     p.Owner,
		TTL:       time.Duration(p.TTLMillis) * time.Millisecond,
		ExpiresAt: p.ExpiresAt,
	}, nil
}

// ListAll enumerates every lock under this manager's prefix.
func (m *Manager) ListAll(ctx context.Context) ([]Info, error) {
	keys, err := m.store.Keys(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(keys))
	for _, storageKey := range keys {
		key := storageKey[len(m.prefix):]
		info, err := m.LockInfo(ctx, key)
		if err != nil || info == nil {
			continue
		}
		out = append(out, *info)
	}
	return out, nil
}

// CleanupExpired sweeps locks whose recorded expiry has passed. Stores with
// native TTL expire keys themselves; this covers the rest and returns the
// number of locks removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	infos, err := m.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	now := m.now()
	for _, info := range infos {
		if !info.Expired(now) {
			continue
		}
		if err := m.store.Delete(ctx, m.storageKey(info.Key)); err != nil {
			m.log.Warn().Err(err).Str("key", info.Key).Msg("failed to clean up expired lock")
			continue
		}
		removed++
	}
	return removed, nil
}
