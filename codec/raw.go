// Package codec converts between typed values and the raw strings stored in a
// URL query.
//
// The default rules follow what a browser router hands out: strings that look
// like JSON (booleans, null, numbers, objects and arrays) are decoded as JSON,
// everything else stays a plain string. Multi-valued keys are arrays and are
// decoded element by element.
package codec

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var jsonNumber = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?(?:[eE][+-]?\d+)?$`)

func looksLikeJSON(s string) bool {
	if s == "" {
		return false
	}
	switch s {
	case "true", "false", "null":
		return true
	}
	if s[0] == '{' || s[0] == '[' {
		return true
	}
	return jsonNumber.MatchString(s)
}

// ParseRaw decodes raw query strings into a dynamic value.
// No strings yields nil, several strings yield a []any.
func ParseRaw(raw []string) (any, error) {
	switch len(raw) {
	case 0:
		return nil, nil
	case 1:
		return parseString(raw[0])
	}
	out := make([]any, len(raw))
	for i, s := range raw {
		v, err := parseString(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseString(s string) (any, error) {
	if !looksLikeJSON(s) {
		return s, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &Error{Raw: s, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return v, nil
}

// SerializeRaw encodes a value into raw query strings. A nil result means the
// key is absent.
func SerializeRaw(v any) ([]string, error) {
	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return nil, nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return []string{string(bytesOf(rv))}, nil
		}
		out := make([]string, rv.Len())
		for i := range out {
			s, err := serializeElement(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	s, err := serializeScalar(rv)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func serializeElement(rv reflect.Value) (string, error) {
	rv, ok := deref(rv)
	if !ok {
		return "", nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return "", &Error{Raw: fmt.Sprint(rv.Interface()), Err: err}
		}
		return string(b), nil
	}
	return serializeScalar(rv)
}

func serializeScalar(rv reflect.Value) (string, error) {
	if rv.CanInterface() {
		if m, ok := rv.Interface().(encoding.TextMarshaler); ok {
			b, err := m.MarshalText()
			if err != nil {
				return "", &Error{Raw: fmt.Sprint(rv.Interface()), Err: err}
			}
			return string(b), nil
		}
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Map, reflect.Struct:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return "", &Error{Raw: fmt.Sprint(rv.Interface()), Err: err}
		}
		return string(b), nil
	}
	return fmt.Sprint(rv.Interface()), nil
}

// IsAbsent reports whether v is nil or a nil pointer, map, slice, interface,
// channel or func. It is the default delete predicate.
func IsAbsent(v any) bool {
	_, ok := deref(reflect.ValueOf(v))
	return !ok
}

func deref(rv reflect.Value) (reflect.Value, bool) {
	for {
		if !rv.IsValid() {
			return rv, false
		}
		switch rv.Kind() {
		case reflect.Pointer, reflect.Interface:
			if rv.IsNil() {
				return rv, false
			}
			rv = rv.Elem()
			continue
		case reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if rv.IsNil() {
				return rv, false
			}
		}
		return rv, true
	}
}

func bytesOf(rv reflect.Value) []byte {
	if rv.Kind() == reflect.Slice {
		return rv.Bytes()
	}
	b := make([]byte, rv.Len())
	reflect.Copy(reflect.ValueOf(b), rv)
	return b
}

// decodeInto parses raw into dst, which must be settable. Missing input leaves
// dst untouched.
func decodeInto(raw []string, dst reflect.Value) error {
	if len(raw) == 0 {
		return nil
	}
	switch {
	case dst.Kind() == reflect.String:
		if len(raw) > 1 {
			return &Error{Raw: strings.Join(raw, ","), Err: fmt.Errorf("%w: %d values for a string", ErrMismatch, len(raw))}
		}
		dst.SetString(raw[0])
		return nil
	case dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.String:
		s := reflect.MakeSlice(dst.Type(), len(raw), len(raw))
		for i, r := range raw {
			s.Index(i).SetString(r)
		}
		dst.Set(s)
		return nil
	}
	if len(raw) == 1 && dst.CanAddr() {
		if u, ok := dst.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(raw[0])); err != nil {
				return &Error{Raw: raw[0], Err: fmt.Errorf("%w: %v", ErrMismatch, err)}
			}
			return nil
		}
	}

	v, err := ParseRaw(raw)
	if err != nil {
		return err
	}
	if v == nil {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Slice {
		if _, ok := v.([]any); !ok {
			v = []any{v}
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return &Error{Raw: strings.Join(raw, ","), Err: fmt.Errorf("%w: %v", ErrMismatch, err)}
	}
	ptr := reflect.New(dst.Type())
	if err := json.Unmarshal(b, ptr.Interface()); err != nil {
		return &Error{Raw: strings.Join(raw, ","), Err: fmt.Errorf("%w: %v", ErrMismatch, err)}
	}
	dst.Set(ptr.Elem())
	return nil
}
