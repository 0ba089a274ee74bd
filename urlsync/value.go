package urlsync

import (
	"errors"
	"net/url"
	"reflect"
	"sync"

	"github.com/huykn/query-cache/codec"
)

// Value mirrors one query parameter as a T.
type Value[T any] struct {
	scope *Scope
	name  string
	def   T
	codec codec.Value[T]

	mu      sync.RWMutex
	current T
	err     error
	version uint64

	subs       listeners[T]
	unregister func()
}

// BindValue binds the query parameter name to a local value. Missing keys
// read as def. A parse failure of the current location is returned.
func BindValue[T any](s *Scope, name string, def T, c codec.Value[T]) (*Value[T], error) {
	initial, err := c.Read(s.loc.Query(), name, def)
	if err != nil {
		return nil, err
	}
	v := &Value[T]{
		scope:   s,
		name:    name,
		def:     def,
		codec:   c,
		current: initial,
	}
	v.unregister = s.register(v)
	return v, nil
}

// Name returns the query parameter name.
func (v *Value[T]) Name() string {
	return v.name
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Err returns the error of the last external parse, if it failed.
func (v *Value[T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Version increases on every change of the value, local or external.
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Set changes the value locally and queues the write to the location.
// Setting a value deep-equal to the current one does nothing.
func (v *Value[T]) Set(x T) error {
	set, del, err := v.codec.Patch(v.name, x)
	if err != nil {
		return err
	}

	changed, err := v.store(x, set, del)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			v.scope.violation(err)
		}
		return err
	}
	if !changed {
		return nil
	}
	v.subs.notify(x, nil)
	v.scope.written()
	return nil
}

// store installs x and merges its write into the pending patch.
func (v *Value[T]) store(x T, set url.Values, del []string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if reflect.DeepEqual(v.current, x) && v.err == nil {
		return false, nil
	}
	v.current = x
	v.err = nil
	v.version++
	return true, v.scope.merge(set, del)
}

// Update sets the value to fn applied to the current value.
func (v *Value[T]) Update(fn func(T) T) error {
	return v.Set(fn(v.Get()))
}

// Subscribe registers fn to run after every change. It receives the parse
// error when the location holds a malformed value.
func (v *Value[T]) Subscribe(fn func(value T, err error)) (cancel func()) {
	return v.subs.add(fn)
}

// Close detaches the value from its scope.
func (v *Value[T]) Close() {
	v.unregister()
}

func (v *Value[T]) applyExternal(q url.Values) bool {
	x, err := v.codec.Read(q, v.name, v.def)

	v.mu.Lock()
	if err != nil {
		v.err = err
		current := v.current
		v.mu.Unlock()
		v.scope.logger.Warn("urlsync: failed to parse query value", "key", v.name, "error", err)
		v.subs.notify(current, err)
		return true
	}
	if reflect.DeepEqual(v.current, x) && v.err == nil {
		v.mu.Unlock()
		return false
	}
	v.current = x
	v.err = nil
	v.version++
	v.mu.Unlock()

	v.subs.notify(x, nil)
	return true
}
