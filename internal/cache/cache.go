package cache

import (
	"context"
	"time"
)

// Cache is the TTL key-value store used for idempotency gates: welcome and
// goodbye dedup, per-user-per-link click dedup, and rate-limit counters.
// Cache state is advisory. It may be lost on restart and is never the source
// of truth for point accounting.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error

	// CheckRateLimit increments the counter under key and reports whether the
	// caller is still within maxRequests. The counter TTL is set only when the
	// counter is created, producing a fixed window: a caller can burst up to
	// 2*maxRequests across a window boundary. Accepted approximation.
	CheckRateLimit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error)
}
