// Package location defines the navigation capability the query synchronizers
// depend on and an in-memory implementation with browser-like history.
package location

import (
	"maps"
	"net/url"
	"slices"
	"sync"
)

// Location exposes the current query parameters of a navigable location.
type Location interface {
	// Query returns a copy of the current query parameters.
	Query() url.Values

	// Commit performs one navigation to q.
	Commit(q url.Values) error

	// OnChange registers fn to run after every navigation, including
	// back/forward. The returned func removes it.
	OnChange(fn func(q url.Values)) (cancel func())
}

// Clone returns a deep copy of q. A nil q yields an empty map.
func Clone(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = slices.Clone(v)
	}
	return out
}

// Equal reports whether a and b hold the same keys and values.
func Equal(a, b url.Values) bool {
	return maps.EqualFunc(a, b, slices.Equal[[]string])
}

// Memory is an in-process Location with a history stack.
type Memory struct {
	mu        sync.Mutex
	history   []url.Values
	index     int
	commits   int
	listeners map[int]func(url.Values)
	nextID    int
}

// NewMemory creates a history whose only entry is initial.
func NewMemory(initial url.Values) *Memory {
	return &Memory{
		history:   []url.Values{Clone(initial)},
		listeners: make(map[int]func(url.Values)),
	}
}

// ParseMemory creates a history from an encoded query string.
func ParseMemory(rawQuery string) (*Memory, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return NewMemory(q), nil
}

// Query returns a copy of the current entry.
func (m *Memory) Query() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Clone(m.history[m.index])
}

// Commit pushes q as a new history entry, dropping forward entries.
func (m *Memory) Commit(q url.Values) error {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	m.Push(q)
	return nil
}

// Push navigates to q without going through a synchronizer, the way a link
// or a typed URL would.
func (m *Memory) Push(q url.Values) {
	m.mu.Lock()
	m.history = append(m.history[:m.index+1], Clone(q))
	m.index++
	m.mu.Unlock()
	m.notify()
}

// Replace overwrites the current entry.
func (m *Memory) Replace(q url.Values) {
	m.mu.Lock()
	m.history[m.index] = Clone(q)
	m.mu.Unlock()
	m.notify()
}

// Back moves one entry back. It returns false at the start of history.
func (m *Memory) Back() bool {
	m.mu.Lock()
	if m.index == 0 {
		m.mu.Unlock()
		return false
	}
	m.index--
	m.mu.Unlock()
	m.notify()
	return true
}

// Forward moves one entry forward. It returns false at the end of history.
func (m *Memory) Forward() bool {
	m.mu.Lock()
	if m.index >= len(m.history)-1 {
		m.mu.Unlock()
		return false
	}
	m.index++
	m.mu.Unlock()
	m.notify()
	return true
}

// Commits returns how many times Commit was called.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Len returns the number of history entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// String returns the encoded current query.
func (m *Memory) String() string {
	return m.Query().Encode()
}

// OnChange registers a navigation listener.
func (m *Memory) OnChange(fn func(q url.Values)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Memory) notify() {
	m.mu.Lock()
	current := m.history[m.index]
	ids := slices.Sorted(maps.Keys(m.listeners))
	fns := make([]func(url.Values), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Clone(current))
	}
}
