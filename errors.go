package querycache

import (
	"errors"

	"github.com/huykn/query-cache/cache"
)

// ErrCacheClosed is returned when operations are performed on a closed cache.
var ErrCacheClosed = cache.ErrCacheClosed

// ErrInvalidConfig is returned when the configuration is invalid.
var ErrInvalidConfig = cache.ErrInvalidConfig

// ErrRedisConnection is returned when Redis connection fails.
var ErrRedisConnection = errors.New("redis connection failed")

// ErrPubSubFailed is returned when pub/sub operations fail.
var ErrPubSubFailed = errors.New("pub/sub operation failed")
