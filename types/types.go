package types

// Action is the kind of an invalidation event.
type Action string

const (
	// Invalidate marks a single query key stale.
	Invalidate Action = "invalidate"
	// Clear marks every query key stale.
	Clear Action = "clear"
)

// InvalidationEvent announces that cached query results are out of date.
// Key is the canonical hash of a query key (see cache.Key.Hash); it is "*" for Clear.
type InvalidationEvent struct {
	Key    string `json:"key"`
	Sender string `json:"sender"`
	Action Action `json:"action"`
}
