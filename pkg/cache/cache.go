// Package cache provides the key-value store the tenant context resolver writes through.
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Get when the key holds no value.
var ErrCacheMiss = errors.New("cache: miss")

// Store is a string key-value store without expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
