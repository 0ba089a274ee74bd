package cache

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/huykn/query-cache/types"
)

// QueryCache is a keyed, deduplicated query cache with stale-time driven
// refetching. Observed entries live in memory until their last observer
// closes; inactive entries are handed to the retention store.
type QueryCache struct {
	local      LocalCache
	marshaller Marshaller
	logger     Logger
	clock      Clock
	options    Options
	group      singleflight.Group

	mu     sync.Mutex
	active map[string]*entry
	epoch  uint64
	nextID uint64

	closed int32
	stats  Stats
}

// New creates a new QueryCache instance.
func New(opts Options) (*QueryCache, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Set defaults for optional fields
	if opts.LocalCacheFactory == nil {
		opts.LocalCacheFactory = NewMapCacheFactory()
	}
	if opts.Marshaller == nil {
		opts.Marshaller = NewJSONMarshaller()
	}
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}

	local, err := opts.LocalCacheFactory.Create()
	if err != nil {
		return nil, err
	}

	return &QueryCache{
		local:      local,
		marshaller: opts.Marshaller,
		logger:     opts.Logger,
		clock:      opts.Clock,
		options:    opts,
		active:     make(map[string]*entry),
	}, nil
}

// Hash returns the canonical hash of key under the cache's marshaller.
func (qc *QueryCache) Hash(key Key) (string, error) {
	return key.Hash(qc.marshaller)
}

// Subscribe registers interest in key. A new key is created in Pending with
// its fetch started. A fresh entry is served as is. A stale entry is served
// while a background refresh runs.
func (qc *QueryCache) Subscribe(ctx context.Context, key Key, fetch FetchFunc, opts ...SubscribeOption) (*Observer, error) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return nil, ErrCacheClosed
	}
	hash, err := key.Hash(qc.marshaller)
	if err != nil {
		return nil, err
	}

	cfg := subscribeConfig{
		staleTime:         qc.options.StaleTime,
		retainDataOnError: qc.options.RetainDataOnError,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	qc.mu.Lock()
	e, created := qc.lookupLocked(hash, true)
	if created {
		e.key = key
	}
	e.fetch = fetch
	e.staleTime = cfg.staleTime
	e.retainDataOnError = cfg.retainDataOnError
	e.clearOnRefresh = cfg.clearOnRefresh

	obs := &Observer{qc: qc, e: e, id: qc.nextID}
	qc.nextID++
	e.observers[obs.id] = obs

	started := false
	switch {
	case created:
		qc.count(&qc.stats.Misses)
		qc.startLocked(ctx, e)
		started = true
	case e.flight != nil:
		qc.count(&qc.stats.Dedups)
	case qc.staleLocked(e):
		qc.count(&qc.stats.StaleHits)
		qc.startLocked(ctx, e)
		started = true
	default:
		qc.count(&qc.stats.FreshHits)
	}
	qc.mu.Unlock()

	if qc.options.DebugMode {
		qc.logger.Debug("Subscribe: registered observer", "key", key, "created", created, "fetching", started)
	}
	if started {
		qc.publish(e)
	}
	return obs, nil
}

// Refresh fetches key again unless it is fresh and force is false. A fetch
// already in flight is joined instead of duplicated, with or without force.
func (qc *QueryCache) Refresh(ctx context.Context, key Key, force bool) (any, error) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return nil, ErrCacheClosed
	}
	hash, err := key.Hash(qc.marshaller)
	if err != nil {
		return nil, err
	}
	qc.mu.Lock()
	e, _ := qc.lookupLocked(hash, false)
	qc.mu.Unlock()
	if e == nil {
		return nil, ErrNoFetcher
	}
	return qc.refresh(ctx, e, force)
}

func (qc *QueryCache) refresh(ctx context.Context, e *entry, force bool) (any, error) {
	qc.mu.Lock()
	if e.flight == nil && !force && !qc.staleLocked(e) {
		data := e.data
		qc.mu.Unlock()
		qc.count(&qc.stats.FreshHits)
		if qc.options.DebugMode {
			qc.logger.Debug("Refresh: entry is fresh", "key", e.key)
		}
		return data, nil
	}
	started := e.flight == nil
	if !started {
		qc.count(&qc.stats.Dedups)
	}
	f := qc.startLocked(ctx, e)
	qc.mu.Unlock()

	if started {
		qc.publish(e)
	}
	return f.wait(ctx)
}

// Peek returns the state of key without registering interest or fetching.
func (qc *QueryCache) Peek(key Key) (State, bool) {
	hash, err := key.Hash(qc.marshaller)
	if err != nil {
		return State{Key: key}, false
	}
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e, _ := qc.lookupLocked(hash, false)
	if e == nil {
		return State{Key: key}, false
	}
	return qc.stateLocked(e), true
}

// Invalidate marks key stale. Observed entries refetch in the background.
func (qc *QueryCache) Invalidate(key Key) error {
	hash, err := key.Hash(qc.marshaller)
	if err != nil {
		return err
	}
	qc.InvalidateHash(hash)
	return nil
}

// InvalidateHash is Invalidate for an already hashed key.
func (qc *QueryCache) InvalidateHash(hash string) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return
	}
	qc.mu.Lock()
	e, _ := qc.lookupLocked(hash, false)
	if e == nil {
		qc.mu.Unlock()
		return
	}
	e.invalidated = true
	started := false
	if len(e.observers) > 0 && e.flight == nil {
		qc.startLocked(context.Background(), e)
		started = true
	}
	qc.mu.Unlock()

	qc.count(&qc.stats.Invalidations)
	if qc.options.DebugMode {
		qc.logger.Debug("Invalidate: marked entry stale", "key", e.key, "refetching", started)
	}
	qc.publish(e)
}

// InvalidateAll marks every entry stale, including retained ones.
func (qc *QueryCache) InvalidateAll() {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return
	}
	qc.mu.Lock()
	qc.epoch++
	var touched []*entry
	for _, hash := range slices.Sorted(maps.Keys(qc.active)) {
		e := qc.active[hash]
		if len(e.observers) > 0 && e.flight == nil {
			qc.startLocked(context.Background(), e)
		}
		touched = append(touched, e)
	}
	qc.mu.Unlock()

	qc.count(&qc.stats.Invalidations)
	if qc.options.DebugMode {
		qc.logger.Debug("InvalidateAll: marked all entries stale", "active", len(touched))
	}
	for _, e := range touched {
		qc.publish(e)
	}
}

// Remove deletes an entry nobody observes.
func (qc *QueryCache) Remove(key Key) error {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return ErrCacheClosed
	}
	hash, err := key.Hash(qc.marshaller)
	if err != nil {
		return err
	}
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if e, ok := qc.active[hash]; ok {
		if len(e.observers) > 0 {
			return ErrEntryInUse
		}
		delete(qc.active, hash)
	}
	qc.local.Delete(hash)
	if qc.options.DebugMode {
		qc.logger.Debug("Remove: deleted entry", "key", key)
	}
	return nil
}

// HandleInvalidation applies an invalidation event received from another
// process.
func (qc *QueryCache) HandleInvalidation(event types.InvalidationEvent) {
	if qc.options.DebugMode {
		qc.logger.Info("Received invalidation event", "action", event.Action, "key", event.Key, "sender", event.Sender)
	}

	switch event.Action {
	case types.Invalidate:
		qc.InvalidateHash(event.Key)
	case types.Clear:
		qc.InvalidateAll()
	default:
		if qc.options.DebugMode {
			qc.logger.Warn("Sync: unknown action", "action", event.Action, "key", event.Key, "sender", event.Sender)
		}
	}
}

// Close closes the cache. In-flight fetches complete but no longer notify.
func (qc *QueryCache) Close() error {
	if !atomic.CompareAndSwapInt32(&qc.closed, 0, 1) {
		return nil
	}
	qc.mu.Lock()
	for _, e := range qc.active {
		clear(e.observers)
	}
	clear(qc.active)
	qc.mu.Unlock()

	qc.local.Close()
	return nil
}

// Stats returns cache statistics.
func (qc *QueryCache) Stats() Stats {
	qc.mu.Lock()
	active := int64(len(qc.active))
	qc.mu.Unlock()
	return Stats{
		Fetches:       atomic.LoadInt64(&qc.stats.Fetches),
		Dedups:        atomic.LoadInt64(&qc.stats.Dedups),
		FreshHits:     atomic.LoadInt64(&qc.stats.FreshHits),
		StaleHits:     atomic.LoadInt64(&qc.stats.StaleHits),
		Misses:        atomic.LoadInt64(&qc.stats.Misses),
		Errors:        atomic.LoadInt64(&qc.stats.Errors),
		Invalidations: atomic.LoadInt64(&qc.stats.Invalidations),
		ActiveEntries: active,
	}
}

// count bumps a statistics counter when metrics are enabled.
func (qc *QueryCache) count(counter *int64) {
	if qc.options.EnableMetrics {
		atomic.AddInt64(counter, 1)
	}
}

// RetentionMetrics returns the metrics of the retention store.
func (qc *QueryCache) RetentionMetrics() LocalCacheMetrics {
	return qc.local.Metrics()
}

// lookupLocked finds the entry of hash. With create set, a retained entry is
// revived into the active set and a missing one is created in Idle; without
// it, retained entries stay where they are. Must hold qc.mu.
func (qc *QueryCache) lookupLocked(hash string, create bool) (*entry, bool) {
	if e, ok := qc.active[hash]; ok {
		return e, false
	}
	if v, ok := qc.local.Get(hash); ok {
		if e, ok := v.(*entry); ok {
			if create {
				qc.local.Delete(hash)
				qc.active[hash] = e
			}
			return e, false
		}
	}
	if !create {
		return nil, false
	}
	e := &entry{
		hash:      hash,
		epoch:     qc.epoch,
		observers: make(map[uint64]*Observer),
	}
	qc.active[hash] = e
	return e, true
}

// staleLocked reports whether e needs a fetch. Must hold qc.mu.
func (qc *QueryCache) staleLocked(e *entry) bool {
	if e.status == Idle || e.status == Error || e.updatedAt.IsZero() {
		return true
	}
	if e.invalidated || e.epoch < qc.epoch {
		return true
	}
	return qc.clock.Now().After(e.updatedAt.Add(e.staleTime))
}

func (qc *QueryCache) stateLocked(e *entry) State {
	return State{
		Key:       e.key,
		Data:      e.data,
		Err:       e.err,
		Status:    e.status,
		UpdatedAt: e.updatedAt,
		Stale:     qc.staleLocked(e),
	}
}

// startLocked starts a fetch of e or returns the one in flight. It never
// blocks; the fetch runs on its own goroutine. Must hold qc.mu.
func (qc *QueryCache) startLocked(ctx context.Context, e *entry) *flight {
	if e.flight != nil {
		return e.flight
	}
	f := &flight{done: make(chan struct{})}
	e.flight = f
	e.status = Pending
	e.invalidated = false
	e.epoch = qc.epoch
	if e.clearOnRefresh {
		e.data = nil
		e.err = nil
	}
	go qc.run(ctx, e, f, e.fetch)
	return f
}

func (qc *QueryCache) run(ctx context.Context, e *entry, f *flight, fetch FetchFunc) {
	fetchCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if qc.options.ContextTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(fetchCtx, qc.options.ContextTimeout)
	}
	defer cancel()

	// The group also covers a removed entry whose fetch is still running.
	r := <-qc.group.DoChan(e.hash, func() (any, error) {
		qc.count(&qc.stats.Fetches)
		if qc.options.DebugMode {
			qc.logger.Debug("Fetch: calling fetch function", "key", e.key)
		}
		if fetch == nil {
			return nil, ErrNoFetcher
		}
		return fetch(fetchCtx)
	})
	qc.settle(e, f, r)
}

func (qc *QueryCache) settle(e *entry, f *flight, r singleflight.Result) {
	qc.mu.Lock()
	if r.Err != nil {
		ferr := &FetchError{Key: e.key, Err: r.Err}
		e.err = ferr
		e.status = Error
		if !e.retainDataOnError {
			e.data = nil
		}
		f.err = ferr
	} else {
		e.data = r.Val
		e.err = nil
		e.status = Success
		e.updatedAt = qc.clock.Now()
		f.val = r.Val
	}
	e.flight = nil
	close(f.done)

	// Invalidated while in flight.
	again := e.invalidated && len(e.observers) > 0 && atomic.LoadInt32(&qc.closed) == 0
	if again {
		qc.startLocked(context.Background(), e)
	}
	qc.mu.Unlock()

	if f.err != nil {
		qc.count(&qc.stats.Errors)
		if qc.options.OnError != nil {
			qc.options.OnError(f.err)
		}
		if qc.options.DebugMode {
			qc.logger.Error("Fetch: failed", "key", e.key, "error", r.Err)
		}
	} else if qc.options.DebugMode {
		qc.logger.Debug("Fetch: settled", "key", e.key, "shared", r.Shared)
	}
	qc.publish(e)
}

// publish sends the current state of e to its observers.
func (qc *QueryCache) publish(e *entry) {
	qc.mu.Lock()
	state := qc.stateLocked(e)
	ids := slices.Sorted(maps.Keys(e.observers))
	observers := make([]*Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, e.observers[id])
	}
	qc.mu.Unlock()

	for _, o := range observers {
		o.listeners.notify(state)
	}
}

// release drops o from its entry. The last observer hands the entry to the
// retention store.
func (qc *QueryCache) release(o *Observer) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e := o.e
	if _, ok := e.observers[o.id]; !ok {
		return
	}
	delete(e.observers, o.id)
	if len(e.observers) > 0 || atomic.LoadInt32(&qc.closed) != 0 {
		return
	}
	if qc.active[e.hash] == e {
		delete(qc.active, e.hash)
		retained := qc.local.Set(e.hash, e, 1)
		if qc.options.DebugMode {
			qc.logger.Debug("Release: entry is inactive", "key", e.key, "retained", retained)
		}
	}
}
