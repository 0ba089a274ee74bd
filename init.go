package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/huykn/query-cache/cache"
	"github.com/huykn/query-cache/location"
	qsync "github.com/huykn/query-cache/sync"
	"github.com/huykn/query-cache/types"
	"github.com/huykn/query-cache/urlsync"
)

// Config configures a query cache client.
type Config struct {
	// StaleTime is how long fetched data stays fresh by default.
	StaleTime time.Duration

	// ContextTimeout bounds each fetch. Zero means no timeout.
	ContextTimeout time.Duration

	// RetainDataOnError keeps the last successful data when a fetch fails.
	RetainDataOnError bool

	// LocalCacheConfig configures the retention store.
	LocalCacheConfig LocalCacheConfig

	// LocalCacheFactory creates the store for entries nobody observes.
	// If nil, inactive entries are kept in a map that never evicts.
	LocalCacheFactory LocalCacheFactory

	// Marshaller hashes query keys.
	// If nil, defaults to JSON marshaller.
	Marshaller Marshaller

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging in the cache and the query string
	// synchronizer, and turns synchronizer invariant violations into panics.
	DebugMode bool

	// EnableMetrics turns on the counters reported by Stats.
	EnableMetrics bool

	// OnError is called when an error occurs in background operations.
	OnError func(error)

	// Clock is the time source for staleness.
	Clock Clock

	// FlushDelay delays query string commits so writes within it coalesce.
	FlushDelay time.Duration

	// RedisAddr is the Redis server address (e.g., "localhost:6379"). When
	// empty, invalidations stay local to the process.
	RedisAddr string

	// RedisPassword is the optional Redis password.
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int

	// InvalidationChannel is the Redis pub/sub channel for invalidations.
	InvalidationChannel string

	// SenderID identifies this process on the invalidation channel so its
	// own events are not applied twice. If empty, a ULID is generated.
	SenderID string
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		StaleTime:           5 * time.Second,
		ContextTimeout:      30 * time.Second,
		EnableMetrics:       true,
		LocalCacheConfig:    DefaultLocalCacheConfig(),
		LocalCacheFactory:   nil, // Will default to a map in New()
		Marshaller:          nil, // Will default to JSON in New()
		Logger:              nil, // Will default to no-op in New()
		RedisAddr:           "",
		InvalidationChannel: "query-cache:invalidate",
		DebugMode:           false,
	}
}

// Client bundles a query cache with optional cross-process invalidation.
type Client struct {
	cache    *cache.QueryCache
	cfg      Config
	logger   Logger
	senderID string

	redis *redis.Client
	sync  *qsync.PubSubSynchronizer
}

// New creates a new client. With RedisAddr set, it connects to Redis and
// applies invalidations published by other processes to the cache.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := cache.Options{
		StaleTime:         cfg.StaleTime,
		ContextTimeout:    cfg.ContextTimeout,
		RetainDataOnError: cfg.RetainDataOnError,
		LocalCacheConfig:  cfg.LocalCacheConfig,
		LocalCacheFactory: cfg.LocalCacheFactory,
		Marshaller:        cfg.Marshaller,
		Logger:            cfg.Logger,
		DebugMode:         cfg.DebugMode,
		EnableMetrics:     cfg.EnableMetrics,
		OnError:           cfg.OnError,
		Clock:             cfg.Clock,
	}
	qc, err := cache.New(opts)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = cache.NewNoOpLogger()
	}
	senderID := cfg.SenderID
	if senderID == "" {
		senderID = ulid.Make().String()
	}
	c := &Client{cache: qc, cfg: cfg, logger: logger, senderID: senderID}

	if cfg.RedisAddr == "" {
		return c, nil
	}
	if cfg.InvalidationChannel == "" {
		qc.Close()
		return nil, ErrInvalidConfig
	}

	c.redis, err = qsync.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		qc.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisConnection, err)
	}
	c.sync = qsync.NewPubSubSynchronizer(c.redis, cfg.InvalidationChannel, senderID)
	c.sync.OnInvalidate(func(event InvalidationEvent) {
		if cfg.DebugMode {
			logger.Debug("Received invalidation", "key", event.Key, "action", event.Action, "sender", event.Sender)
		}
		qc.HandleInvalidation(event)
	})
	if err := c.sync.Subscribe(ctx); err != nil {
		c.redis.Close()
		qc.Close()
		return nil, fmt.Errorf("%w: %v", ErrPubSubFailed, err)
	}
	return c, nil
}

// Cache returns the query cache.
func (c *Client) Cache() *cache.QueryCache {
	return c.cache
}

// SenderID returns the id this client publishes invalidations under.
func (c *Client) SenderID() string {
	return c.senderID
}

// NewScope creates a query string synchronizer for loc that shares the
// client's logger and debug settings.
func (c *Client) NewScope(loc location.Location) (*urlsync.Scope, error) {
	return urlsync.NewScope(loc, urlsync.Options{
		FlushDelay: c.cfg.FlushDelay,
		Logger:     c.logger,
		DebugMode:  c.cfg.DebugMode,
		OnError:    c.cfg.OnError,
	})
}

// Invalidate marks key stale here and, when connected, in every other
// process listening on the channel.
func (c *Client) Invalidate(ctx context.Context, key Key) error {
	hash, err := c.cache.Hash(key)
	if err != nil {
		return err
	}
	c.cache.InvalidateHash(hash)
	if c.sync == nil {
		return nil
	}
	if err := c.sync.Invalidate(ctx, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrPubSubFailed, err)
	}
	return nil
}

// InvalidateAll marks every query stale here and, when connected, in every
// other process.
func (c *Client) InvalidateAll(ctx context.Context) error {
	c.cache.InvalidateAll()
	if c.sync == nil {
		return nil
	}
	if err := c.sync.Publish(ctx, InvalidationEvent{Key: "*", Action: types.Clear}); err != nil {
		return fmt.Errorf("%w: %v", ErrPubSubFailed, err)
	}
	return nil
}

// Stats returns cache statistics.
func (c *Client) Stats() Stats {
	return c.cache.Stats()
}

// Close stops invalidation delivery and closes the cache.
func (c *Client) Close() error {
	var firstErr error
	if c.sync != nil {
		if err := c.sync.Close(); err != nil {
			firstErr = err
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Cache is an alias for cache.Cache interface.
type Cache = cache.Cache

// Stats is an alias for cache.Stats.
type Stats = cache.Stats
