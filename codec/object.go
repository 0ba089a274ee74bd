package codec

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

// Object is the codec for a struct whose fields are stored as separate query
// parameters sharing one synchronization cycle.
//
// Field names come from the `query` tag, then the `json` tag, then the
// lowercased field name. `query:"-"` skips a field.
type Object[T any] struct {
	// ParseFunc replaces per-field parsing. It receives only the keys of T
	// present in the query and the default record.
	ParseFunc func(q url.Values, base T) (T, error)

	// SerializeFunc replaces per-field serialization.
	SerializeFunc func(v T) (url.Values, error)

	// DeleteIfFunc is called once per field with its value and name. The
	// default removes nil values and empty strings.
	DeleteIfFunc func(value any, key string) bool
}

type field struct {
	name  string
	index []int
}

func fieldsOf(t reflect.Type) ([]field, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	var out []field
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := tagName(f.Tag.Get("query"))
		if name == "-" {
			continue
		}
		if name == "" {
			name = tagName(f.Tag.Get("json"))
		}
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		out = append(out, field{name: name, index: f.Index})
	}
	return out, nil
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// Keys returns the query parameter names owned by T.
func (c Object[T]) Keys() ([]string, error) {
	fields, err := fieldsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.name
	}
	return keys, nil
}

// Parse overlays the fields present in q on top of base.
func (c Object[T]) Parse(q url.Values, base T) (T, error) {
	fields, err := fieldsOf(reflect.TypeFor[T]())
	if err != nil {
		return base, err
	}
	if c.ParseFunc != nil {
		picked := url.Values{}
		for _, f := range fields {
			if raw, ok := q[f.name]; ok {
				picked[f.name] = raw
			}
		}
		return c.ParseFunc(picked, base)
	}

	out := base
	rv := reflect.ValueOf(&out).Elem()
	for _, f := range fields {
		raw, ok := q[f.name]
		if !ok {
			continue
		}
		dst := rv.FieldByIndex(f.index)
		if err := decodeInto(raw, dst); err != nil {
			return base, withKey(err, f.name)
		}
	}
	return out, nil
}

// Serialize encodes every field of v. Absent fields and fields serializing to
// no values are left out.
func (c Object[T]) Serialize(v T) (url.Values, error) {
	if c.SerializeFunc != nil {
		return c.SerializeFunc(v)
	}
	fields, err := fieldsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	out := url.Values{}
	for _, f := range fields {
		raw, err := SerializeRaw(rv.FieldByIndex(f.index).Interface())
		if err != nil {
			return nil, withKey(err, f.name)
		}
		if len(raw) > 0 {
			out[f.name] = raw
		}
	}
	return out, nil
}

// DeleteIf reports whether the field named key with the given value is removed.
func (c Object[T]) DeleteIf(value any, key string) bool {
	if c.DeleteIfFunc != nil {
		return c.DeleteIfFunc(value, key)
	}
	if IsAbsent(value) {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// Patch computes the query change for writing v: serialized fields to set and
// field names to remove.
func (c Object[T]) Patch(v T) (set url.Values, del []string, err error) {
	fields, err := fieldsOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, nil, err
	}
	set, err = c.Serialize(v)
	if err != nil {
		return nil, nil, err
	}
	rv := reflect.ValueOf(v)
	for _, f := range fields {
		value := rv.FieldByIndex(f.index).Interface()
		if _, ok := set[f.name]; !ok || c.DeleteIf(value, f.name) {
			set.Del(f.name)
			del = append(del, f.name)
		}
	}
	return set, del, nil
}
