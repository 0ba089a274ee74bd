package artworks

import (
	"context"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Simulated wraps an API with an artificial delay and random failures, to
// watch the cache under a slow or flaky network.
type Simulated struct {
	api API

	mu          sync.Mutex
	delay       time.Duration
	successRate float64
	active      map[ulid.ULID]time.Time

	// Rand returns a number in [0, 1). Tests replace it.
	Rand func() float64
}

var _ API = (*Simulated)(nil)

// NewSimulated wraps api. It starts with no delay and no failures.
func NewSimulated(api API) *Simulated {
	return &Simulated{
		api:         api,
		successRate: 1,
		active:      make(map[ulid.ULID]time.Time),
		Rand:        rand.Float64,
	}
}

// SetDelay sets how long every call waits before reaching the API.
func (s *Simulated) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// SetSuccessRate sets the probability of a call succeeding, clamped to [0, 1].
func (s *Simulated) SetSuccessRate(rate float64) {
	s.mu.Lock()
	s.successRate = min(max(rate, 0), 1)
	s.mu.Unlock()
}

// ActiveDelays returns the calls currently waiting, keyed by an opaque
// handle, with the time each one started.
func (s *Simulated) ActiveDelays() map[ulid.ULID]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.active)
}

// List implements API.
func (s *Simulated) List(ctx context.Context, params PaginationParams) (*Page, error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}
	return s.api.List(ctx, params)
}

// Get implements API.
func (s *Simulated) Get(ctx context.Context, id int) (*ArtworkDetails, error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}
	return s.api.Get(ctx, id)
}

// Search implements API.
func (s *Simulated) Search(ctx context.Context, params SearchParams) (*Page, error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}
	return s.api.Search(ctx, params)
}

// ImageURLs implements API.
func (s *Simulated) ImageURLs(ctx context.Context, ids []int) ([]ImageRef, error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}
	return s.api.ImageURLs(ctx, ids)
}

func (s *Simulated) simulate(ctx context.Context) error {
	handle := ulid.Make()
	s.mu.Lock()
	delay, rate := s.delay, s.successRate
	s.active[handle] = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, handle)
		s.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.Rand() >= rate {
		return ErrNetwork
	}
	return nil
}
