package urlsync

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/huykn/query-cache/location"
)

// Scope is the synchronization scope of one Location. Every binding created
// on a Scope shares its pending patch.
type Scope struct {
	loc       location.Location
	scheduler Scheduler
	logger    Logger
	options   Options

	mu         sync.Mutex
	pending    *PendingPatch
	batchDepth int
	echoes     []url.Values
	bindings   map[uint64]binding
	nextID     uint64
	closed     bool
	cancel     func()

	settle      listeners[struct{}]
	settleDirty bool

	stats Stats
}

// NewScope creates a Scope bound to loc.
func NewScope(loc location.Location, opts Options) (*Scope, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Set defaults for optional fields
	if opts.Scheduler == nil {
		opts.Scheduler = NewDeferredScheduler(opts.FlushDelay)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Scope{
		loc:       loc,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		options:   opts,
		bindings:  make(map[uint64]binding),
	}
	s.cancel = loc.OnChange(s.handleExternal)
	return s, nil
}

// Location returns the Location the scope is bound to.
func (s *Scope) Location() location.Location {
	return s.loc
}

// Batch runs fn and commits every write made inside it with one navigation
// when the outermost Batch returns.
func (s *Scope) Batch(fn func()) {
	s.mu.Lock()
	s.batchDepth++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batchDepth--
		depth := s.batchDepth
		p := s.pending
		dirty := depth == 0 && s.settleDirty
		if dirty {
			s.settleDirty = false
		}
		s.mu.Unlock()
		if depth == 0 && p != nil {
			s.flush(p)
		}
		if dirty {
			s.settle.notify(struct{}{}, nil)
		}
	}()

	fn()
}

// OnSettle registers fn to run once every binding has taken in a change:
// after an external navigation has been applied to all bindings, when the
// outermost Batch with writes returns, or after a write made outside a
// batch. Listeners that derive state from several bindings should use it
// instead of subscribing to each binding.
func (s *Scope) OnSettle(fn func()) (cancel func()) {
	return s.settle.add(func(struct{}, error) { fn() })
}

// Flush commits the pending patch now, if any.
func (s *Scope) Flush() {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p != nil {
		s.flush(p)
	}
}

// Pending returns the query the pending patch would commit, or nil.
func (s *Scope) Pending() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	return s.pending.Apply(s.loc.Query())
}

// Stats returns synchronizer statistics.
func (s *Scope) Stats() Stats {
	return Stats{
		Commits:          atomic.LoadInt64(&s.stats.Commits),
		SkippedCommits:   atomic.LoadInt64(&s.stats.SkippedCommits),
		Merges:           atomic.LoadInt64(&s.stats.Merges),
		DiscardedPatches: atomic.LoadInt64(&s.stats.DiscardedPatches),
		ExternalChanges:  atomic.LoadInt64(&s.stats.ExternalChanges),
	}
}

// Close stops listening to the location and drops the pending patch.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.pending != nil {
		s.pending.state = patchDiscarded
		s.pending = nil
	}
	s.bindings = map[uint64]binding{}
	s.mu.Unlock()

	s.cancel()
}

func (s *Scope) register(b binding) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.bindings[id] = b
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.bindings, id)
		s.mu.Unlock()
	}
}

// merge records a local write. The first write of a cycle creates the
// pending patch and schedules its flush. Invariant violations are returned
// for the caller to report once it holds no locks.
func (s *Scope) merge(set url.Values, del []string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrScopeClosed
	}
	p := s.pending
	created := p == nil
	if created {
		p = newPendingPatch()
		s.pending = p
	}
	err := p.Merge(set, del)
	batching := s.batchDepth > 0
	s.mu.Unlock()

	if err != nil {
		return err
	}
	atomic.AddInt64(&s.stats.Merges, 1)

	if s.options.DebugMode {
		s.logger.Debug("urlsync: merged write", "set", set, "delete", del, "newPatch", created)
	}
	if created && !batching {
		s.scheduler.Schedule(func() { s.flush(p) })
	}
	return nil
}

// written ends the local write of one binding. Inside a batch the settle
// listeners wait for the outermost Batch to return.
func (s *Scope) written() {
	s.mu.Lock()
	if s.batchDepth > 0 {
		s.settleDirty = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.settle.notify(struct{}{}, nil)
}

// flush commits p if it is still the pending patch of the scope.
func (s *Scope) flush(p *PendingPatch) {
	s.mu.Lock()
	if s.pending != p || p.state != patchOpen {
		// A consumed patch must never stay installed, and an open one must
		// never be dropped without being consumed.
		installed, state := s.pending == p, p.state
		s.mu.Unlock()
		if installed || state == patchOpen {
			s.violation(fmt.Errorf("%w: flush of %s patch, installed=%t", ErrInvariantViolation, state, installed))
		}
		return
	}
	current := s.loc.Query()
	next := p.Apply(current)
	p.state = patchCommitted
	s.pending = nil
	if location.Equal(next, current) {
		s.mu.Unlock()
		atomic.AddInt64(&s.stats.SkippedCommits, 1)
		if s.options.DebugMode {
			s.logger.Debug("urlsync: skipped commit, query unchanged", "merges", p.Merges())
		}
		return
	}
	s.echoes = append(s.echoes, next)
	s.mu.Unlock()

	if s.options.DebugMode {
		s.logger.Debug("urlsync: committing query", "query", next.Encode(), "merges", p.Merges())
	}
	if err := s.loc.Commit(next); err != nil {
		s.mu.Lock()
		s.dropEcho(next)
		s.mu.Unlock()
		s.reportError(fmt.Errorf("urlsync: commit: %w", err))
		return
	}
	atomic.AddInt64(&s.stats.Commits, 1)
}

// handleExternal runs on every navigation. Our own commits come back as
// echoes and keep the pending patch; any other navigation wins over it.
func (s *Scope) handleExternal(q url.Values) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	echo := s.dropEcho(q)
	view := q
	if s.pending != nil {
		if echo {
			view = s.pending.Apply(q)
		} else {
			s.pending.state = patchDiscarded
			s.pending = nil
			atomic.AddInt64(&s.stats.DiscardedPatches, 1)
			if s.options.DebugMode {
				s.logger.Debug("urlsync: location changed, dropped pending patch")
			}
		}
	}
	ids := slices.Sorted(maps.Keys(s.bindings))
	bs := make([]binding, 0, len(ids))
	for _, id := range ids {
		bs = append(bs, s.bindings[id])
	}
	s.mu.Unlock()

	if !echo {
		atomic.AddInt64(&s.stats.ExternalChanges, 1)
	}
	changed := false
	for _, b := range bs {
		if b.applyExternal(view) {
			changed = true
		}
	}
	if changed {
		s.settle.notify(struct{}{}, nil)
	}
}

// dropEcho removes q from the outstanding commits. Must hold s.mu.
func (s *Scope) dropEcho(q url.Values) bool {
	for i, e := range s.echoes {
		if location.Equal(e, q) {
			s.echoes = slices.Delete(s.echoes, i, i+1)
			return true
		}
	}
	return false
}

func (s *Scope) violation(err error) {
	if s.options.DebugMode {
		panic(err)
	}
	s.reportError(err)
}

func (s *Scope) reportError(err error) {
	s.logger.Error("urlsync: error", "error", err)
	if s.options.OnError != nil {
		s.options.OnError(err)
	}
}
