// Package lock provides distributed per-symbol mutual exclusion backed by a
// key-value store with native expiry. Ownership is proven by token match,
// never by key existence alone, so an expired-and-reacquired lock cannot be
// released by its previous owner.
package lock

import (
	"context"
	"encoding/json"
	"time"
)

// Info describes one held lock for introspection.
type Info struct {
	Key       string        `json:"key"`
	Owner     string        `json:"owner"`
	TTL       time.Duration `json:"ttl"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the lock's TTL has lapsed. Backing stores with
// native expiry may still hold the key briefly; treat this as eventually
// consistent.
func (i Info) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// payload is what gets stored under the lock key.
type payload struct {
	Owner     string    `json:"owner"`
	TTLMillis int64     `json:"ttl_ms"`
	ExpiresAt time.Time `json:"expires_at"`
}

func encodePayload(owner string, ttl time.Duration, now time.Time) (string, error) {
	raw, err := json.Marshal(payload{Owner: owner, TTLMillis: ttl.Milliseconds(), ExpiresAt: now.Add(ttl)})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodePayload(raw string) (payload, error) {
	var p payload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// Store is the minimal key-value contract the manager needs. All operations
// are atomic with respect to a single key.
type Store interface {
	// SetNX stores value under key with a TTL iff the key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the stored value; found is false for absent keys.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// CompareAndDelete removes the key iff its current value equals value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// Delete removes the key unconditionally.
	Delete(ctx context.Context, key string) error
	// Keys lists every key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
