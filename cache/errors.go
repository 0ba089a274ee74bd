package cache

import "fmt"

var (
	// ErrCacheClosed is returned when operations are performed on a closed cache.
	ErrCacheClosed = NewError("cache is closed")

	// ErrEntryInUse is returned by Remove while the entry has observers.
	ErrEntryInUse = NewError("cache entry has observers")

	// ErrNoFetcher is returned by Refresh for a key nobody subscribed to.
	ErrNoFetcher = NewError("no fetch function registered for key")

	// ErrTypeMismatch is returned when cached data is not of the type a
	// Query expects.
	ErrTypeMismatch = NewError("cached data has unexpected type")
)

// FetchError is the failure of one fetch. Every caller waiting on that fetch
// receives the same *FetchError.
type FetchError struct {
	Key Key
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
