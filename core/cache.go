package core

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values for a limited time.
type Cache interface {
	// Get decodes the cached value of key into dest; found is false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
