package cache

import (
	"context"
	"time"
)

// Status is the lifecycle state of an entry.
type Status int

const (
	// Idle entries have never been fetched.
	Idle Status = iota
	// Pending entries have a fetch in flight.
	Pending
	// Success entries hold data from their last fetch.
	Success
	// Error entries hold the failure of their last fetch.
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of one entry.
type State struct {
	Key    Key
	Data   any
	Err    error
	Status Status
	// UpdatedAt is when data was last fetched successfully.
	UpdatedAt time.Time
	// Stale is computed when the snapshot is taken.
	Stale bool
}

// Fetching reports whether a fetch is in flight.
func (s State) Fetching() bool {
	return s.Status == Pending
}

type subscribeConfig struct {
	staleTime         time.Duration
	retainDataOnError bool
	clearOnRefresh    bool
}

// SubscribeOption configures an entry on Subscribe. The latest subscriber's
// settings apply to the entry.
type SubscribeOption func(*subscribeConfig)

// WithStaleTime sets how long fetched data stays fresh.
func WithStaleTime(d time.Duration) SubscribeOption {
	return func(c *subscribeConfig) { c.staleTime = d }
}

// WithRetainDataOnError keeps the previous data when a fetch fails.
func WithRetainDataOnError(retain bool) SubscribeOption {
	return func(c *subscribeConfig) { c.retainDataOnError = retain }
}

// WithClearOnRefresh drops data and error when a refresh starts instead of
// serving them while it runs.
func WithClearOnRefresh(clear bool) SubscribeOption {
	return func(c *subscribeConfig) { c.clearOnRefresh = clear }
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// flight is one fetch of an entry. done is closed after the entry settled.
type flight struct {
	done chan struct{}
	val  any
	err  error
}

func (f *flight) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type entry struct {
	key   Key
	hash  string
	fetch FetchFunc

	data      any
	err       error
	status    Status
	updatedAt time.Time
	// epoch is the cache epoch when the last fetch started.
	epoch       uint64
	invalidated bool
	flight      *flight

	staleTime         time.Duration
	retainDataOnError bool
	clearOnRefresh    bool

	observers map[uint64]*Observer
}
