package cache

import (
	"time"
)

// LocalCacheConfig configures the retention store of inactive entries.
type LocalCacheConfig struct {
	// NumCounters is the number of counters for the cache (Ristretto only).
	// Recommended: 10 * MaxItems
	NumCounters int64

	// MaxCost is the maximum cost of items in the cache (Ristretto only).
	// Every entry costs 1.
	MaxCost int64

	// BufferItems is the number of items to buffer before eviction (Ristretto only).
	// Recommended: 64
	BufferItems int64

	// IgnoreInternalCost ignores the internal cost of items (Ristretto only).
	IgnoreInternalCost bool

	// MaxSize is the maximum number of items in the cache (LRU only).
	MaxSize int
}

// Options configures a QueryCache instance.
type Options struct {
	// StaleTime is how long a fetched result stays fresh when a subscriber
	// does not pass its own.
	StaleTime time.Duration

	// ContextTimeout bounds each fetch. Zero means no timeout.
	ContextTimeout time.Duration

	// RetainDataOnError keeps the last successful data when a fetch fails.
	RetainDataOnError bool

	// LocalCacheConfig configures the retention store.
	LocalCacheConfig LocalCacheConfig

	// LocalCacheFactory creates the store for entries nobody observes.
	// If nil, defaults to a map that never evicts.
	LocalCacheFactory LocalCacheFactory

	// Marshaller hashes query keys.
	// If nil, defaults to JSON marshaller.
	Marshaller Marshaller

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// EnableMetrics turns on the counters reported by Stats. ActiveEntries
	// is reported either way.
	EnableMetrics bool

	// OnError is called when a background fetch fails.
	OnError func(error)

	// Clock is the time source for staleness.
	// If nil, defaults to the system clock.
	Clock Clock
}

// DefaultOptions returns default cache options.
func DefaultOptions() Options {
	return Options{
		StaleTime:         5 * time.Second,
		ContextTimeout:    30 * time.Second,
		RetainDataOnError: false,
		EnableMetrics:     true,
		LocalCacheConfig:  DefaultLocalCacheConfig(),
		LocalCacheFactory: nil, // Will default to a map in New()
		Marshaller:        nil, // Will default to JSON in New()
		Logger:            nil, // Will default to no-op in New()
		Clock:             nil, // Will default to the system clock in New()
		DebugMode:         false,
	}
}

// DefaultLocalCacheConfig returns default retention store configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters:        1e5,
		MaxCost:            1e4, // entries
		BufferItems:        64,
		IgnoreInternalCost: true,
		MaxSize:            10000,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.StaleTime < 0 {
		return ErrInvalidConfig
	}
	if o.ContextTimeout < 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheFactory == nil {
		return nil
	}
	if o.LocalCacheConfig.NumCounters <= 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheConfig.MaxCost <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ErrInvalidConfig is returned when options are invalid.
var ErrInvalidConfig = NewError("invalid cache configuration")

// NewError creates a new error with the given message.
func NewError(msg string) error {
	return &cacheError{msg: msg}
}

type cacheError struct {
	msg string
}

func (e *cacheError) Error() string {
	return e.msg
}
