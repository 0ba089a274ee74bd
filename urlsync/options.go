package urlsync

import (
	"errors"
	"time"
)

// Options configures a Scope.
type Options struct {
	// Scheduler runs the flush of the pending patch.
	// If nil, a DeferredScheduler with FlushDelay is used.
	Scheduler Scheduler

	// FlushDelay delays the commit of the pending patch when Scheduler is nil.
	// Writes within the delay are coalesced.
	FlushDelay time.Duration

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging and turns invariant violations into panics.
	DebugMode bool

	// OnError is called when a commit fails or an invariant is violated.
	OnError func(error)
}

// DefaultOptions returns default synchronizer options.
func DefaultOptions() Options {
	return Options{
		FlushDelay: 0,
		Scheduler:  nil, // Will default to a DeferredScheduler in NewScope()
		Logger:     nil, // Will default to no-op in NewScope()
		DebugMode:  false,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.FlushDelay < 0 {
		return ErrInvalidOptions
	}
	return nil
}

// ErrInvalidOptions is returned when options are invalid.
var ErrInvalidOptions = errors.New("invalid synchronizer options")

// ErrInvariantViolation reports a broken coalescing guarantee.
var ErrInvariantViolation = errors.New("urlsync: invariant violation")

// ErrScopeClosed is returned when writing through a closed Scope.
var ErrScopeClosed = errors.New("urlsync: scope is closed")

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
