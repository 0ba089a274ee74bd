package urlsync

import (
	"maps"
	"slices"
	"sync"
)

// listeners is the notify-list of one synchronized value.
type listeners[T any] struct {
	mu     sync.Mutex
	fns    map[uint64]func(T, error)
	nextID uint64
}

func (l *listeners[T]) add(fn func(T, error)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T, error))
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

func (l *listeners[T]) notify(v T, err error) {
	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.fns))
	fns := make([]func(T, error), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v, err)
	}
}
