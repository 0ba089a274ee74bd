package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueryOptions configures a typed Query.
type QueryOptions[T any] struct {
	// Key computes the current key from the query's inputs. It is called
	// again on every Recompute.
	Key func() Key

	// Fetch loads the data of key.
	Fetch func(ctx context.Context, key Key) (T, error)

	// StaleTime overrides the cache default when positive.
	StaleTime time.Duration

	// RetainDataOnError keeps the previous data of a key when its fetch fails.
	RetainDataOnError bool

	// PlaceholderData is shown while a key has no data yet. It receives the
	// data of the previous key, if there was any.
	PlaceholderData func(prev T, ok bool) (T, bool)
}

// QueryState is a typed snapshot of a Query.
type QueryState[T any] struct {
	Key     Key
	Data    T
	HasData bool
	Err     error
	Status  Status
	// UpdatedAt is when the key was last fetched successfully.
	UpdatedAt time.Time
	Stale     bool
	// Placeholder is set when Data came from PlaceholderData.
	Placeholder bool
}

// Query follows a key that changes with its inputs. Each distinct key is its
// own cache entry; switching keys subscribes to the new one and drops
// interest in the old one.
type Query[T any] struct {
	cache *QueryCache
	opts  QueryOptions[T]

	recompute sync.Mutex

	mu      sync.Mutex
	obs     *Observer
	cancel  func()
	prev    T
	hasPrev bool
	closed  bool

	listeners listeners[QueryState[T]]
}

// NewQuery creates a Query and subscribes to its initial key.
func NewQuery[T any](ctx context.Context, c *QueryCache, opts QueryOptions[T]) (*Query[T], error) {
	if opts.Key == nil || opts.Fetch == nil {
		return nil, ErrInvalidConfig
	}
	q := &Query[T]{cache: c, opts: opts}
	if _, err := q.Recompute(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// Recompute evaluates the key again. When its hash differs from the current
// one, the new key is subscribed and the old observer is closed. It reports
// whether the query switched away from a previous key.
func (q *Query[T]) Recompute(ctx context.Context) (bool, error) {
	q.recompute.Lock()
	defer q.recompute.Unlock()

	key := q.opts.Key()
	hash, err := q.cache.Hash(key)
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrCacheClosed
	}
	old, oldCancel := q.obs, q.cancel
	q.mu.Unlock()
	if old != nil && old.Hash() == hash {
		return false, nil
	}

	subOpts := []SubscribeOption{WithRetainDataOnError(q.opts.RetainDataOnError)}
	if q.opts.StaleTime > 0 {
		subOpts = append(subOpts, WithStaleTime(q.opts.StaleTime))
	}
	fetch := q.opts.Fetch
	obs, err := q.cache.Subscribe(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx, key)
	}, subOpts...)
	if err != nil {
		return false, err
	}
	cancel := obs.OnChange(func(State) { q.emit() })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cancel()
		obs.Close()
		return false, ErrCacheClosed
	}
	if old != nil {
		if v, ok, _ := typed[T](old.State().Data); ok {
			q.prev, q.hasPrev = v, true
		}
	}
	q.obs, q.cancel = obs, cancel
	q.mu.Unlock()

	if old != nil {
		oldCancel()
		old.Close()
	}
	q.emit()
	return old != nil, nil
}

// Key returns the current key.
func (q *Query[T]) Key() Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.obs.Key()
}

// State returns a typed snapshot of the current key.
func (q *Query[T]) State() QueryState[T] {
	q.mu.Lock()
	obs, prev, hasPrev := q.obs, q.prev, q.hasPrev
	q.mu.Unlock()

	st := obs.State()
	qs := QueryState[T]{
		Key:       st.Key,
		Err:       st.Err,
		Status:    st.Status,
		UpdatedAt: st.UpdatedAt,
		Stale:     st.Stale,
	}
	v, ok, err := typed[T](st.Data)
	switch {
	case err != nil:
		qs.Err = err
	case ok:
		qs.Data, qs.HasData = v, true
	case q.opts.PlaceholderData != nil && st.Status != Error:
		if pv, pok := q.opts.PlaceholderData(prev, hasPrev); pok {
			qs.Data, qs.HasData, qs.Placeholder = pv, true, true
		}
	}
	return qs
}

// Wait blocks until the current key settles.
func (q *Query[T]) Wait(ctx context.Context) (T, error) {
	q.mu.Lock()
	obs := q.obs
	q.mu.Unlock()
	return result[T](obs.Wait(ctx))
}

// Refresh refetches the current key. Without force a fresh key resolves
// with its cached data.
func (q *Query[T]) Refresh(ctx context.Context, force bool) (T, error) {
	q.mu.Lock()
	obs := q.obs
	q.mu.Unlock()
	return result[T](obs.Refresh(ctx, force))
}

// OnChange registers fn to run on every state change, including key switches.
func (q *Query[T]) OnChange(fn func(QueryState[T])) (cancel func()) {
	return q.listeners.add(fn)
}

// Close drops interest in the current key.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	obs, cancel := q.obs, q.cancel
	q.mu.Unlock()

	q.listeners.reset()
	cancel()
	obs.Close()
}

func (q *Query[T]) emit() {
	q.listeners.notify(q.State())
}

func typed[T any](data any) (T, bool, error) {
	var zero T
	if data == nil {
		return zero, false, nil
	}
	v, ok := data.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, zero, data)
	}
	return v, true, nil
}

func result[T any](data any, err error) (T, error) {
	v, _, terr := typed[T](data)
	if err != nil {
		return v, err
	}
	return v, terr
}
