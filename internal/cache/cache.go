package cache

import (
	"context"
	"time"
)

// CounterStore is an atomic per-key integer counter in the shared fast
// store. IncrBy must be linearizable per key; it is the sole primitive the
// stock ledger and the admission gate rely on.
type CounterStore interface {
	// IncrBy adds delta (which may be negative) and returns the resulting value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// Set overwrites the counter. Only used at promotion publish time.
	Set(ctx context.Context, key string, value int64) error
}

// FlagStore marks boolean conditions such as the sold-out marker.
type FlagStore interface {
	SetFlag(ctx context.Context, key string) error
	HasFlag(ctx context.Context, key string) (bool, error)
	ClearFlag(ctx context.Context, key string) error
}

// TokenStore holds short-lived opaque string values. Get returns ("", nil)
// for a missing or expired key; an expired token is indistinguishable from
// one that never existed.
type TokenStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectCache is a read-through JSON cache for read-mostly entities.
// GetJSON reports whether the key was present and decodes into dest when it was.
type ObjectCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	PutJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}
