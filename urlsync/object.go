package urlsync

import (
	"errors"
	"net/url"
	"reflect"
	"sync"

	"github.com/huykn/query-cache/codec"
)

// Object mirrors a record whose fields are separate query parameters. All
// fields are written in the same cycle.
type Object[T any] struct {
	scope *Scope
	def   T
	codec codec.Object[T]

	mu      sync.RWMutex
	current T
	err     error
	version uint64

	subs       listeners[T]
	unregister func()
}

// BindObject binds the fields of T to query parameters. Missing keys keep
// the value of def.
func BindObject[T any](s *Scope, def T, c codec.Object[T]) (*Object[T], error) {
	initial, err := c.Parse(s.loc.Query(), def)
	if err != nil {
		return nil, err
	}
	o := &Object[T]{
		scope:   s,
		def:     def,
		codec:   c,
		current: initial,
	}
	o.unregister = s.register(o)
	return o, nil
}

// Get returns the current record.
func (o *Object[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Err returns the error of the last external parse, if it failed.
func (o *Object[T]) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// Version increases on every change of the record, local or external.
func (o *Object[T]) Version() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.version
}

// Set replaces the record locally and queues the write of every field.
func (o *Object[T]) Set(x T) error {
	set, del, err := o.codec.Patch(x)
	if err != nil {
		return err
	}

	changed, err := o.store(x, set, del)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			o.scope.violation(err)
		}
		return err
	}
	if !changed {
		return nil
	}
	o.subs.notify(x, nil)
	o.scope.written()
	return nil
}

// store installs x and merges its write into the pending patch.
func (o *Object[T]) store(x T, set url.Values, del []string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if reflect.DeepEqual(o.current, x) && o.err == nil {
		return false, nil
	}
	o.current = x
	o.err = nil
	o.version++
	return true, o.scope.merge(set, del)
}

// Update sets the record to fn applied to the current record.
func (o *Object[T]) Update(fn func(T) T) error {
	return o.Set(fn(o.Get()))
}

// Reset writes the default record.
func (o *Object[T]) Reset() error {
	return o.Set(o.def)
}

// Subscribe registers fn to run after every change.
func (o *Object[T]) Subscribe(fn func(value T, err error)) (cancel func()) {
	return o.subs.add(fn)
}

// Close detaches the record from its scope.
func (o *Object[T]) Close() {
	o.unregister()
}

func (o *Object[T]) applyExternal(q url.Values) bool {
	x, err := o.codec.Parse(q, o.def)

	o.mu.Lock()
	if err != nil {
		o.err = err
		current := o.current
		o.mu.Unlock()
		o.scope.logger.Warn("urlsync: failed to parse query record", "error", err)
		o.subs.notify(current, err)
		return true
	}
	if reflect.DeepEqual(o.current, x) && o.err == nil {
		o.mu.Unlock()
		return false
	}
	o.current = x
	o.err = nil
	o.version++
	o.mu.Unlock()

	o.subs.notify(x, nil)
	return true
}
