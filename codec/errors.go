package codec

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a raw value looks like JSON but does not decode.
var ErrMalformed = errors.New("malformed query value")

// ErrMismatch is returned when a decoded value does not fit the target type.
var ErrMismatch = errors.New("query value does not fit target type")

// ErrUnsupported is returned when a record codec is used with a non-struct type.
var ErrUnsupported = errors.New("unsupported record type")

// Error describes a failure to parse or serialize one query parameter.
type Error struct {
	// Key is the query parameter name, empty when unknown.
	Key string
	// Raw is the offending raw text.
	Raw string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("codec: %q: %v", e.Raw, e.Err)
	}
	return fmt.Sprintf("codec: %s=%q: %v", e.Key, e.Raw, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// withKey attaches the parameter name to a codec error.
func withKey(err error, key string) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Key == "" {
		cp := *ce
		cp.Key = key
		return &cp
	}
	return err
}
