package codec

import (
	"net/url"
	"reflect"
)

// Value is the codec for one query parameter holding a T.
// Nil funcs fall back to the default rules.
type Value[T any] struct {
	// ParseFunc converts the raw strings of a present key into T.
	ParseFunc func(raw []string) (T, error)

	// SerializeFunc converts T into raw strings. A nil result removes the key.
	SerializeFunc func(v T) ([]string, error)

	// DeleteIfFunc removes the key instead of writing it when it returns true.
	// The default removes nil values.
	DeleteIfFunc func(v T) bool
}

// Parse converts raw strings into T.
func (c Value[T]) Parse(raw []string) (T, error) {
	if c.ParseFunc != nil {
		return c.ParseFunc(raw)
	}
	return ParseAs[T](raw)
}

// Serialize converts v into raw strings.
func (c Value[T]) Serialize(v T) ([]string, error) {
	if c.SerializeFunc != nil {
		return c.SerializeFunc(v)
	}
	return SerializeRaw(v)
}

// DeleteIf reports whether v removes the key from the query.
func (c Value[T]) DeleteIf(v T) bool {
	if c.DeleteIfFunc != nil {
		return c.DeleteIfFunc(v)
	}
	return IsAbsent(v)
}

// Read parses key from q. Absent keys return def.
func (c Value[T]) Read(q url.Values, key string, def T) (T, error) {
	raw, ok := q[key]
	if !ok {
		return def, nil
	}
	v, err := c.Parse(raw)
	if err != nil {
		return def, withKey(err, key)
	}
	return v, nil
}

// Patch computes the query change for writing v under key: either raw strings
// to set or a deletion.
func (c Value[T]) Patch(key string, v T) (set url.Values, del []string, err error) {
	if c.DeleteIf(v) {
		return nil, []string{key}, nil
	}
	raw, err := c.Serialize(v)
	if err != nil {
		return nil, nil, withKey(err, key)
	}
	if len(raw) == 0 {
		return nil, []string{key}, nil
	}
	return url.Values{key: raw}, nil, nil
}

// ParseAs decodes raw strings into T using the default rules. String targets
// keep the raw text verbatim and take a single value.
func ParseAs[T any](raw []string) (T, error) {
	var out T
	if err := decodeInto(raw, reflect.ValueOf(&out).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// String is the codec for plain text parameters. Empty strings are removed.
func String() Value[string] {
	return Value[string]{
		DeleteIfFunc: func(v string) bool { return v == "" },
	}
}

// Int is the codec for integer parameters.
func Int() Value[int] {
	return Value[int]{}
}

// Bool is the codec for boolean parameters. False is removed.
func Bool() Value[bool] {
	return Value[bool]{
		DeleteIfFunc: func(v bool) bool { return !v },
	}
}

// DeleteAtMost returns a delete predicate that removes integers not greater
// than n, e.g. DeleteAtMost(1) keeps "page" out of the query on the first page.
func DeleteAtMost(n int) func(int) bool {
	return func(v int) bool { return v <= n }
}
