package cache

import (
	"context"
	"time"

	"github.com/huykn/query-cache/types"
)

// Logger defines the interface for logging in the query cache.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// Marshaller defines the interface for JSON marshalling/unmarshalling.
// The cache uses it to turn query keys into their canonical hash.
type Marshaller interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes a value from bytes.
	Unmarshal(data []byte, v any) error
}

// LocalCache defines the interface for the store that retains entries no
// longer observed by anyone. Observed entries are never stored here.
type LocalCache interface {
	// Get retrieves a value from the local cache.
	Get(key string) (any, bool)

	// Set stores a value in the local cache.
	Set(key string, value any, cost int64) bool

	// Delete removes a value from the local cache.
	Delete(key string)

	// Clear removes all values from the local cache.
	Clear()

	// Close closes the local cache.
	Close()

	// Metrics returns cache metrics.
	Metrics() LocalCacheMetrics
}

// LocalCacheMetrics represents local cache metrics.
type LocalCacheMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalCacheFactory defines the interface for creating local cache implementations.
type LocalCacheFactory interface {
	// Create creates a new local cache instance.
	Create() (LocalCache, error)
}

// Clock returns the current time. Tests replace it to control staleness.
type Clock interface {
	Now() time.Time
}

// FetchFunc loads the data of one query key.
type FetchFunc func(ctx context.Context) (any, error)

// Cache defines the interface for a keyed, deduplicated, stale-time aware
// query cache.
type Cache interface {
	// Subscribe registers interest in key. A missing or stale entry starts a
	// fetch; cached state is available immediately from the Observer.
	Subscribe(ctx context.Context, key Key, fetch FetchFunc, opts ...SubscribeOption) (*Observer, error)

	// Refresh fetches key again unless it is fresh and force is false.
	// Concurrent refreshes of one key share a single fetch.
	Refresh(ctx context.Context, key Key, force bool) (any, error)

	// Peek returns the state of key without registering interest.
	Peek(key Key) (State, bool)

	// Invalidate marks key stale. Observed entries refetch in the background.
	Invalidate(key Key) error

	// InvalidateAll marks every entry stale.
	InvalidateAll()

	// Remove deletes an entry nobody observes.
	Remove(key Key) error

	// Close closes the cache and releases all resources.
	Close() error

	// Stats returns cache statistics.
	Stats() Stats
}

// Synchronizer delivers invalidation events between processes.
type Synchronizer interface {
	// Subscribe starts listening for invalidation events.
	Subscribe(ctx context.Context) error

	// Publish publishes an invalidation event.
	Publish(ctx context.Context, event types.InvalidationEvent) error

	// OnInvalidate registers a callback for invalidation events.
	OnInvalidate(callback func(event types.InvalidationEvent))

	// Close closes the synchronizer.
	Close() error
}

// InvalidationEvent is an alias for types.InvalidationEvent for backward compatibility
type InvalidationEvent = types.InvalidationEvent

// Action is an alias for types.Action for backward compatibility
type Action = types.Action

// Action constants for invalidation events
const (
	ActionInvalidate = types.Invalidate
	ActionClear      = types.Clear
)

// Stats represents cache statistics.
type Stats struct {
	// Fetches counts fetch functions actually invoked.
	Fetches int64
	// Dedups counts callers that joined a fetch already in flight.
	Dedups int64
	// FreshHits counts subscriptions and refreshes served from a fresh entry.
	FreshHits int64
	// StaleHits counts subscriptions served stale while revalidating.
	StaleHits int64
	// Misses counts subscriptions that created a new entry.
	Misses        int64
	Errors        int64
	Invalidations int64
	ActiveEntries int64
}
