// Package urlsync keeps local values and the query parameters of a Location
// consistent in both directions.
//
// Local writes from every binding of a Scope are merged into one pending
// patch and committed with a single navigation. Navigation from outside
// (links, back/forward) re-parses every binding without writing back.
package urlsync

import "net/url"

// Logger defines the interface for logging in the synchronizer.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// Scheduler runs deferred work. A Scope schedules one flush per cycle.
type Scheduler interface {
	// Schedule arranges for task to run after the current batch of writes.
	Schedule(task func())
}

// binding is a synchronized value registered in a Scope.
type binding interface {
	// applyExternal re-parses the binding from q without writing back. It
	// reports whether the binding notified its subscribers.
	applyExternal(q url.Values) bool
}

// Stats represents synchronizer statistics.
type Stats struct {
	Commits          int64
	SkippedCommits   int64
	Merges           int64
	DiscardedPatches int64
	ExternalChanges  int64
}
