package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huykn/query-cache/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, mutate func(*Options)) (*QueryCache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts := DefaultOptions()
	opts.Clock = clock
	if mutate != nil {
		mutate(&opts)
	}
	qc, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(func() { qc.Close() })
	return qc, clock
}

// countingFetch returns the call number as data.
func countingFetch(calls *int64) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return atomic.AddInt64(calls, 1), nil
	}
}

func mustSubscribe(t *testing.T, qc *QueryCache, key Key, fetch FetchFunc, opts ...SubscribeOption) *Observer {
	t.Helper()
	obs, err := qc.Subscribe(context.Background(), key, fetch, opts...)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return obs
}

func mustWait(t *testing.T, obs *Observer) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := obs.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return data
}

func TestNewCache(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	if qc.local == nil {
		t.Fatal("Retention store should be created")
	}
	if _, err := New(Options{StaleTime: -1}); err == nil {
		t.Fatal("Expected error for invalid options")
	}
}

func TestKeyHashIsStructural(t *testing.T) {
	a, err := Key{"artwork-search", map[string]any{"q": "monet", "page": 1}}.Hash(nil)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, _ := Key{"artwork-search", map[string]any{"page": 1, "q": "monet"}}.Hash(nil)
	if a != b {
		t.Fatalf("Expected equal hashes, got %s and %s", a, b)
	}
	c, _ := Key{"artwork-search", map[string]any{"page": 2, "q": "monet"}}.Hash(nil)
	if a == c {
		t.Fatal("Different keys should hash differently")
	}
	if _, err := (Key{make(chan int)}).Hash(nil); err == nil {
		t.Fatal("Expected error for unserializable key")
	}
	if got := (Key{"artwork-details", 27992}).String(); got != "artwork-details/27992" {
		t.Fatalf("Unexpected key string %q", got)
	}
}

func TestSubscribeNewKeyFetches(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64

	obs := mustSubscribe(t, qc, Key{"artwork-list"}, countingFetch(&calls))
	if got := mustWait(t, obs); got != int64(1) {
		t.Fatalf("Expected data 1, got %v", got)
	}

	state := obs.State()
	if state.Status != Success {
		t.Fatalf("Expected success, got %v", state.Status)
	}
	if state.Stale {
		t.Fatal("Fresh entry should not be stale")
	}
	if stats := qc.Stats(); stats.Misses != 1 || stats.Fetches != 1 {
		t.Fatalf("Unexpected stats %+v", stats)
	}
}

func TestConcurrentSubscribersShareOneFetch(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "page-1", nil
	}

	var wg sync.WaitGroup
	observers := make([]*Observer, 10)
	for i := range observers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			observers[i] = mustSubscribe(t, qc, Key{"artwork-list"}, fetch)
		}(i)
	}
	wg.Wait()
	close(release)

	for _, obs := range observers {
		if got := mustWait(t, obs); got != "page-1" {
			t.Fatalf("Expected page-1, got %v", got)
		}
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("Expected 1 fetch, got %d", n)
	}
	if dedups := qc.Stats().Dedups; dedups != 9 {
		t.Fatalf("Expected 9 dedups, got %d", dedups)
	}
}

func TestStaleWindow(t *testing.T) {
	const staleTime = time.Minute
	const eps = time.Millisecond
	qc, clock := newTestCache(t, func(o *Options) { o.StaleTime = staleTime })
	var calls int64
	key := Key{"artwork-details", 1}

	first := mustSubscribe(t, qc, key, countingFetch(&calls))
	mustWait(t, first)

	clock.Advance(staleTime - eps)
	second := mustSubscribe(t, qc, key, countingFetch(&calls))
	if second.State().Stale {
		t.Fatal("Entry should be fresh before the stale time")
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("Expected exactly 1 fetch inside the window, got %d", n)
	}

	clock.Advance(2 * eps)
	third := mustSubscribe(t, qc, key, countingFetch(&calls))
	// stale data is served while the refresh runs
	if data := third.State().Data; data != int64(1) {
		t.Fatalf("Expected stale data 1, got %v", data)
	}
	if got := mustWait(t, third); got != int64(2) {
		t.Fatalf("Expected refreshed data 2, got %v", got)
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("Expected 2 fetches after the window, got %d", n)
	}
	if stats := qc.Stats(); stats.FreshHits != 1 || stats.StaleHits != 1 {
		t.Fatalf("Unexpected stats %+v", stats)
	}
}

func TestRefreshWithinStaleTimeReturnsCachedValue(t *testing.T) {
	type pagination struct{ CurrentPage int }
	type page struct {
		Data       []string
		Pagination pagination
	}

	qc, clock := newTestCache(t, nil)
	var calls int64
	fetch := func(ctx context.Context) (any, error) {
		n := atomic.AddInt64(&calls, 1)
		return &page{Data: []string{"a", "b"}, Pagination: pagination{CurrentPage: int(n)}}, nil
	}
	key := Key{"artwork-list"}
	ctx := context.Background()

	obs := mustSubscribe(t, qc, key, fetch, WithStaleTime(time.Hour))
	first := mustWait(t, obs).(*page)
	if first.Pagination.CurrentPage != 1 {
		t.Fatalf("Expected current page 1, got %d", first.Pagination.CurrentPage)
	}

	clock.Advance(30 * time.Minute)
	got, err := qc.Refresh(ctx, key, false)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got.(*page) != first {
		t.Fatal("Expected the cached value at 30 minutes")
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("Expected 1 fetch, got %d", n)
	}

	clock.Advance(31 * time.Minute)
	got, err = qc.Refresh(ctx, key, false)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got.(*page) == first {
		t.Fatal("Expected a new value at 61 minutes")
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("Expected 2 fetches, got %d", n)
	}
}

func TestForceRefreshFetchesFreshEntry(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	obs := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	mustWait(t, obs)

	got, err := obs.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got != int64(2) {
		t.Fatalf("Expected 2, got %v", got)
	}
}

func TestRefreshJoinsInFlightFetch(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "done", nil
	}
	mustSubscribe(t, qc, Key{"k"}, fetch)

	results := make(chan any, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, _ := qc.Refresh(context.Background(), Key{"k"}, true)
			results <- v
		}()
	}
	// give the refreshers time to join before the fetch settles
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 3; i++ {
		if v := <-results; v != "done" {
			t.Fatalf("Expected done, got %v", v)
		}
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("Expected 1 fetch, got %d", n)
	}
}

func TestRefreshUnknownKey(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	if _, err := qc.Refresh(context.Background(), Key{"missing"}, false); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("Expected ErrNoFetcher, got %v", err)
	}
}

func TestRefreshCallerCancelDoesNotAbortFetch(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	release := make(chan struct{})
	var fetchErr error
	fetch := func(ctx context.Context) (any, error) {
		<-release
		fetchErr = ctx.Err()
		return "late", nil
	}
	obs := mustSubscribe(t, qc, Key{"k"}, fetch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := obs.Refresh(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	close(release)
	if got := mustWait(t, obs); got != "late" {
		t.Fatalf("Expected late, got %v", got)
	}
	if fetchErr != nil {
		t.Fatalf("Fetch context should not be cancelled, got %v", fetchErr)
	}
}

func TestFetchErrorReachesEverySubscriber(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	boom := errors.New("network error")
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		<-release
		return nil, boom
	}

	a := mustSubscribe(t, qc, Key{"k"}, fetch)
	b := mustSubscribe(t, qc, Key{"k"}, fetch)
	notified := make(chan error, 4)
	b.OnChange(func(s State) { notified <- s.Err })
	close(release)

	ctx := context.Background()
	_, errA := a.Wait(ctx)
	_, errB := b.Wait(ctx)
	var fe *FetchError
	if !errors.As(errA, &fe) {
		t.Fatalf("Expected *FetchError, got %v", errA)
	}
	if errA != errB {
		t.Fatal("Every subscriber should receive the same error")
	}
	if !errors.Is(errB, boom) {
		t.Fatalf("Expected error to wrap cause, got %v", errB)
	}

	state := a.State()
	if state.Status != Error || state.Data != nil || !state.Stale {
		t.Fatalf("Unexpected state %+v", state)
	}
	select {
	case err := <-notified:
		if err != errA {
			t.Fatalf("Observer should be notified of the error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Observer was not notified")
	}
	if qc.Stats().Errors != 1 {
		t.Fatalf("Expected 1 error, got %d", qc.Stats().Errors)
	}
}

func TestErroredEntryRetriesOnNextSubscribe(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	fetch := func(ctx context.Context) (any, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}
	first := mustSubscribe(t, qc, Key{"k"}, fetch)
	if _, err := first.Wait(context.Background()); err == nil {
		t.Fatal("Expected first fetch to fail")
	}

	second := mustSubscribe(t, qc, Key{"k"}, fetch)
	if got := mustWait(t, second); got != "ok" {
		t.Fatalf("Expected ok, got %v", got)
	}
}

func TestRetainDataOnError(t *testing.T) {
	for _, retain := range []bool{true, false} {
		qc, _ := newTestCache(t, nil)
		var calls int64
		fetch := func(ctx context.Context) (any, error) {
			if atomic.AddInt64(&calls, 1) == 1 {
				return "first", nil
			}
			return nil, errors.New("down")
		}
		obs := mustSubscribe(t, qc, Key{"k"}, fetch, WithRetainDataOnError(retain))
		mustWait(t, obs)
		if _, err := obs.Refresh(context.Background(), true); err == nil {
			t.Fatal("Expected refresh to fail")
		}

		state := obs.State()
		if state.Err == nil {
			t.Fatal("Error should be recorded")
		}
		if retain && state.Data != "first" {
			t.Fatalf("Expected retained data, got %v", state.Data)
		}
		if !retain && state.Data != nil {
			t.Fatalf("Expected data to be cleared, got %v", state.Data)
		}
	}
}

func TestClearOnRefresh(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	release := make(chan struct{}, 2)
	release <- struct{}{}
	var calls int64
	fetch := func(ctx context.Context) (any, error) {
		<-release
		return atomic.AddInt64(&calls, 1), nil
	}
	obs := mustSubscribe(t, qc, Key{"k"}, fetch, WithClearOnRefresh(true))
	mustWait(t, obs)

	done := make(chan struct{})
	go func() {
		obs.Refresh(context.Background(), true)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for obs.State().Status != Pending && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if data := obs.State().Data; data != nil {
		t.Fatalf("Expected data to be cleared while refreshing, got %v", data)
	}
	release <- struct{}{}
	<-done
}

func TestObserverNotifications(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	release := make(chan struct{})
	obs := mustSubscribe(t, qc, Key{"k"}, func(ctx context.Context) (any, error) {
		<-release
		return "v", nil
	})

	states := make(chan State, 4)
	obs.OnChange(func(s State) { states <- s })
	close(release)
	mustWait(t, obs)

	select {
	case s := <-states:
		if s.Status != Success || s.Data != "v" {
			t.Fatalf("Unexpected state %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a notification")
	}
}

func TestInactiveEntriesAreRetained(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	obs := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	mustWait(t, obs)
	obs.Close()

	if active := qc.Stats().ActiveEntries; active != 0 {
		t.Fatalf("Expected 0 active entries, got %d", active)
	}
	if _, ok := qc.Peek(Key{"k"}); !ok {
		t.Fatal("Inactive entry should be retained")
	}

	// fresh retained entry is revived without a fetch
	again := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	if again.State().Data != int64(1) {
		t.Fatalf("Expected retained data, got %v", again.State().Data)
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("Expected 1 fetch, got %d", n)
	}
}

func TestLRURetentionEvictsOldestInactiveEntry(t *testing.T) {
	qc, _ := newTestCache(t, func(o *Options) { o.LocalCacheFactory = NewLRUCacheFactory(1) })
	var calls int64

	for _, id := range []int{1, 2} {
		obs := mustSubscribe(t, qc, Key{"artwork-details", id}, countingFetch(&calls))
		mustWait(t, obs)
		obs.Close()
	}

	if _, ok := qc.Peek(Key{"artwork-details", 1}); ok {
		t.Fatal("Oldest inactive entry should be evicted")
	}
	if _, ok := qc.Peek(Key{"artwork-details", 2}); !ok {
		t.Fatal("Newest inactive entry should be retained")
	}
	if evictions := qc.RetentionMetrics().Evictions; evictions != 1 {
		t.Fatalf("Expected 1 eviction, got %d", evictions)
	}
}

func TestObservedEntriesAreNeverEvicted(t *testing.T) {
	qc, _ := newTestCache(t, func(o *Options) { o.LocalCacheFactory = NewLRUCacheFactory(1) })
	var calls int64
	for id := 0; id < 5; id++ {
		mustWait(t, mustSubscribe(t, qc, Key{"k", id}, countingFetch(&calls)))
	}
	for id := 0; id < 5; id++ {
		if _, ok := qc.Peek(Key{"k", id}); !ok {
			t.Fatalf("Observed entry %d should be present", id)
		}
	}
}

func TestRemove(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	obs := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	mustWait(t, obs)

	if err := qc.Remove(Key{"k"}); !errors.Is(err, ErrEntryInUse) {
		t.Fatalf("Expected ErrEntryInUse, got %v", err)
	}
	obs.Close()
	if err := qc.Remove(Key{"k"}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := qc.Peek(Key{"k"}); ok {
		t.Fatal("Removed entry should be gone")
	}
}

func TestInvalidateRefetchesObservedEntry(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	obs := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	mustWait(t, obs)

	if err := qc.Invalidate(Key{"k"}); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if got := mustWait(t, obs); got != int64(2) {
		t.Fatalf("Expected refetched data 2, got %v", got)
	}
}

func TestInvalidateAllMarksRetainedEntriesStale(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	obs := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	mustWait(t, obs)
	obs.Close()

	qc.InvalidateAll()
	state, ok := qc.Peek(Key{"k"})
	if !ok || !state.Stale {
		t.Fatalf("Retained entry should be stale, got %+v", state)
	}

	again := mustSubscribe(t, qc, Key{"k"}, countingFetch(&calls))
	if got := mustWait(t, again); got != int64(2) {
		t.Fatalf("Expected refetched data 2, got %v", got)
	}
}

func TestHandleInvalidation(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	var calls int64
	key := Key{"artwork-details", 7}
	obs := mustSubscribe(t, qc, key, countingFetch(&calls))
	mustWait(t, obs)

	hash, _ := qc.Hash(key)
	qc.HandleInvalidation(types.InvalidationEvent{Key: hash, Action: types.Invalidate, Sender: "api"})
	if got := mustWait(t, obs); got != int64(2) {
		t.Fatalf("Expected refetched data 2, got %v", got)
	}

	qc.HandleInvalidation(types.InvalidationEvent{Key: "*", Action: types.Clear, Sender: "api"})
	if got := mustWait(t, obs); got != int64(3) {
		t.Fatalf("Expected refetched data 3, got %v", got)
	}

	// unknown actions are ignored
	qc.HandleInvalidation(types.InvalidationEvent{Key: hash, Action: "bogus"})
	if n := atomic.LoadInt64(&calls); n != 3 {
		t.Fatalf("Expected 3 fetches, got %d", n)
	}
}

func TestOnErrorCallback(t *testing.T) {
	reported := make(chan error, 1)
	qc, _ := newTestCache(t, func(o *Options) {
		o.OnError = func(err error) { reported <- err }
	})
	obs := mustSubscribe(t, qc, Key{"k"}, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	obs.Wait(context.Background())

	select {
	case err := <-reported:
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected *FetchError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnError was not called")
	}
}

func TestClosedCache(t *testing.T) {
	qc, _ := newTestCache(t, nil)
	if err := qc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := qc.Close(); err != nil {
		t.Fatalf("Second close should be a no-op: %v", err)
	}
	if _, err := qc.Subscribe(context.Background(), Key{"k"}, nil); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("Expected ErrCacheClosed, got %v", err)
	}
	if _, err := qc.Refresh(context.Background(), Key{"k"}, false); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("Expected ErrCacheClosed, got %v", err)
	}
}

func TestStatsRespectEnableMetrics(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		qc, _ := newTestCache(t, func(o *Options) { o.EnableMetrics = enabled })

		var calls int64
		obs := mustSubscribe(t, qc, Key{"metrics"}, countingFetch(&calls))
		mustWait(t, obs)
		if err := qc.Invalidate(Key{"metrics"}); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}

		stats := qc.Stats()
		if enabled && (stats.Misses != 1 || stats.Fetches == 0 || stats.Invalidations != 1) {
			t.Fatalf("Expected counters with metrics enabled, got %+v", stats)
		}
		if !enabled && (stats.Misses != 0 || stats.Fetches != 0 || stats.Invalidations != 0) {
			t.Fatalf("Expected zero counters with metrics disabled, got %+v", stats)
		}
		if stats.ActiveEntries != 1 {
			t.Fatalf("Expected 1 active entry, got %d", stats.ActiveEntries)
		}
		obs.Close()
	}
}
