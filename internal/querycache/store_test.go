package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an injectable clock advanced manually by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// newTestStore returns a store with an injected clock and instant retry
// sleeps.
func newTestStore(t *testing.T, opts Options) (*Store, *fakeClock) {
	t.Helper()

	s := New(opts)
	clock := newFakeClock()
	s.now = clock.Now
	s.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return s, clock
}

// countingFetch returns a FetchFunc that counts calls and returns the given
// value.
func countingFetch(calls *atomic.Int32, value any) FetchFunc {
	return func(_ context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrFetch_MissFetchesAndStores(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	var calls atomic.Int32

	got, err := s.GetOrFetch(context.Background(), Key{"tickets", "detail", 5}, countingFetch(&calls, "payload"), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, int32(1), calls.Load())

	snap, ok := s.Read(Key{"tickets", "detail", 5})
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "payload", snap.Data)
	assert.False(t, snap.Stale)
}

func TestGetOrFetch_StaleWhileRevalidateTimeline(t *testing.T) {
	// staleTime=60s; miss at t=0, cached at t=30, stale-served plus exactly
	// one background refetch at t=61.
	s, clock := newTestStore(t, Options{})

	var calls atomic.Int32

	key := Key{"dashboard", "stats"}
	opts := FetchOptions{StaleTime: 60 * time.Second}
	fn := countingFetch(&calls, "stats-v1")

	got, err := s.GetOrFetch(context.Background(), key, fn, opts)
	require.NoError(t, err)
	assert.Equal(t, "stats-v1", got)
	require.Equal(t, int32(1), calls.Load())

	clock.Advance(30 * time.Second)

	got, err = s.GetOrFetch(context.Background(), key, fn, opts)
	require.NoError(t, err)
	assert.Equal(t, "stats-v1", got)
	assert.Equal(t, int32(1), calls.Load(), "fresh hit issues no fetch")

	clock.Advance(31 * time.Second)

	got, err = s.GetOrFetch(context.Background(), key, fn, opts)
	require.NoError(t, err)
	assert.Equal(t, "stats-v1", got, "stale data served immediately")

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, time.Millisecond, "exactly one background refetch")

	// The revalidation committed; the entry is fresh again.
	require.Eventually(t, func() bool {
		snap, ok := s.Read(key)
		return ok && !snap.Stale && snap.Status == StatusSuccess
	}, 2*time.Second, time.Millisecond)
}

func TestGetOrFetch_ConcurrentCallersShareOneFetch(t *testing.T) {
	const n = 12

	s, _ := newTestStore(t, Options{})

	release := make(chan struct{})

	var calls atomic.Int32

	fn := func(_ context.Context) (any, error) {
		calls.Add(1)
		<-release

		return "shared", nil
	}

	var wg sync.WaitGroup

	results := make([]any, n)
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = s.GetOrFetch(context.Background(), Key{"tickets", "list"}, fn, FetchOptions{})
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)

	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i], "caller %d", i)
	}

	assert.Equal(t, int32(1), calls.Load(), "identical concurrent requests share one fetch")
}

func TestGetOrFetch_SupersededResultDiscarded(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	key := Key{"tickets", "detail", 7}

	releaseOld := make(chan struct{})
	oldStarted := make(chan struct{})

	oldFn := func(_ context.Context) (any, error) {
		close(oldStarted)
		<-releaseOld

		return "old", nil
	}

	oldDone := make(chan struct{})

	go func() {
		defer close(oldDone)

		// The slow fetch: issued first, completes last.
		_, _ = s.GetOrFetch(context.Background(), key, oldFn, FetchOptions{})
	}()

	<-oldStarted

	// Invalidate supersedes the in-flight fetch; the next access issues a
	// newer fetch which completes first.
	require.NoError(t, s.Invalidate(key))

	got, err := s.GetOrFetch(context.Background(), key, func(_ context.Context) (any, error) {
		return "new", nil
	}, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	// Let the slow fetch finish after the newer one already committed.
	close(releaseOld)
	<-oldDone

	snap, ok := s.Read(key)
	require.True(t, ok)
	assert.Equal(t, "new", snap.Data, "older result must not clobber the newer one")
	assert.Equal(t, StatusSuccess, snap.Status)
}

func TestGetOrFetch_ErrorThenRefetchOnNextAccess(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	key := Key{"tickets", "list"}
	boom := errors.New("backend down")

	var calls atomic.Int32

	_, err := s.GetOrFetch(context.Background(), key, func(_ context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	}, FetchOptions{})
	require.ErrorIs(t, err, boom)

	snap, ok := s.Read(key)
	require.True(t, ok)
	assert.Equal(t, StatusError, snap.Status)
	assert.False(t, snap.HasData)

	// The error is not cached as data: the next access fetches again.
	got, err := s.GetOrFetch(context.Background(), key, countingFetch(&calls, "recovered"), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
}

func TestGetOrFetch_TransientRetryBudget(t *testing.T) {
	transient := errors.New("transient")

	s, _ := newTestStore(t, Options{
		Retryable: func(err error) bool { return errors.Is(err, transient) },
	})

	var calls atomic.Int32

	got, err := s.GetOrFetch(context.Background(), Key{"users"}, func(_ context.Context) (any, error) {
		if calls.Add(1) <= 2 {
			return nil, transient
		}

		return "users", nil
	}, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "users", got)
	assert.Equal(t, int32(3), calls.Load(), "two retries then success")
}

func TestGetOrFetch_BudgetExhaustedSurfacesError(t *testing.T) {
	transient := errors.New("transient")

	s, _ := newTestStore(t, Options{
		Retryable: func(err error) bool { return errors.Is(err, transient) },
	})

	var calls atomic.Int32

	_, err := s.GetOrFetch(context.Background(), Key{"users"}, func(_ context.Context) (any, error) {
		calls.Add(1)
		return nil, transient
	}, FetchOptions{})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus the budget of 2")
}

func TestGetOrFetch_NonRetryableErrorNotRetried(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("validation")

	s, _ := newTestStore(t, Options{
		Retryable: func(err error) bool { return errors.Is(err, transient) },
	})

	var calls atomic.Int32

	_, err := s.GetOrFetch(context.Background(), Key{"users"}, func(_ context.Context) (any, error) {
		calls.Add(1)
		return nil, fatal
	}, FetchOptions{})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetch_RevalidateOptionForcesBackgroundRefetch(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	var calls atomic.Int32

	key := Key{"reports", "monthly", map[string]string{"year": "2026", "month": "8"}}
	opts := FetchOptions{StaleTime: time.Hour}
	fn := countingFetch(&calls, "report")

	_, err := s.GetOrFetch(context.Background(), key, fn, opts)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	// Data is nowhere near stale, but Revalidate forces a refetch anyway —
	// still serving the cached value immediately.
	got, err := s.GetOrFetch(context.Background(), key, fn, FetchOptions{StaleTime: time.Hour, Revalidate: true})
	require.NoError(t, err)
	assert.Equal(t, "report", got)

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, time.Millisecond)
}

func TestRead_IsPure(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	_, ok := s.Read(Key{"tickets", "list"})
	assert.False(t, ok)
	assert.Zero(t, s.Len(), "Read must not create entries")
}
