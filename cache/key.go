package cache

import (
	"fmt"
	"strings"
)

// Key identifies a query. Segments must be JSON-serializable. Two keys are
// the same query when their canonical encodings match, so map segments
// compare regardless of insertion order.
type Key []any

// Hash returns the canonical encoding of k. A nil marshaller uses JSON.
func (k Key) Hash(m Marshaller) (string, error) {
	if m == nil {
		m = NewJSONMarshaller()
	}
	if k == nil {
		k = Key{}
	}
	b, err := m.Marshal([]any(k))
	if err != nil {
		return "", fmt.Errorf("cache: hash key %v: %w", []any(k), err)
	}
	return string(b), nil
}

// String returns the segments joined by slashes, for logs.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, seg := range k {
		parts[i] = fmt.Sprint(seg)
	}
	return strings.Join(parts, "/")
}
