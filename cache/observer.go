package cache

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Observer is one subscriber's view of a cache entry.
type Observer struct {
	qc        *QueryCache
	e         *entry
	id        uint64
	closed    int32
	listeners listeners[State]
}

// Key returns the observed key.
func (o *Observer) Key() Key {
	return o.e.key
}

// Hash returns the canonical hash of the observed key.
func (o *Observer) Hash() string {
	return o.e.hash
}

// State returns a snapshot of the entry.
func (o *Observer) State() State {
	o.qc.mu.Lock()
	defer o.qc.mu.Unlock()
	return o.qc.stateLocked(o.e)
}

// Wait blocks until the fetch in flight settles and returns its outcome.
// Without a fetch in flight it returns the cached data and error.
func (o *Observer) Wait(ctx context.Context) (any, error) {
	o.qc.mu.Lock()
	f := o.e.flight
	data, err := o.e.data, o.e.err
	o.qc.mu.Unlock()
	if f == nil {
		return data, err
	}
	return f.wait(ctx)
}

// Refresh refetches the observed entry. See QueryCache.Refresh.
func (o *Observer) Refresh(ctx context.Context, force bool) (any, error) {
	if atomic.LoadInt32(&o.closed) != 0 {
		return nil, ErrCacheClosed
	}
	return o.qc.refresh(ctx, o.e, force)
}

// OnChange registers fn to run on every state change of the entry.
func (o *Observer) OnChange(fn func(State)) (cancel func()) {
	return o.listeners.add(fn)
}

// Close drops interest in the entry. A fetch in flight is not aborted.
func (o *Observer) Close() {
	if !atomic.CompareAndSwapInt32(&o.closed, 0, 1) {
		return
	}
	o.listeners.reset()
	o.qc.release(o)
}

// listeners is an ordered notify-list.
type listeners[T any] struct {
	mu     sync.Mutex
	fns    map[uint64]func(T)
	nextID uint64
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners[T]) reset() {
	l.mu.Lock()
	l.fns = nil
	l.mu.Unlock()
}

func (l *listeners[T]) notify(v T) {
	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.fns))
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
