package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Process-wide defaults, used when neither the store options nor the fetch
// options say otherwise.
const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

// Transient-retry constants. The retry budget is deliberately small: the
// request pipeline below owns the 401 refresh cycle, this layer only papers
// over brief network blips and 5xx hiccups.
const (
	defaultRetryAttempts = 2
	retryBaseBackoff     = 500 * time.Millisecond
	retryMaxBackoff      = 10 * time.Second
	retryBackoffFactor   = 2.0
	retryJitterFraction  = 0.25
)

// FetchFunc loads the authoritative value for a key from the backend.
type FetchFunc func(ctx context.Context) (any, error)

// Observer is notified with an entry snapshot after every committed fetch
// for a subscribed key.
type Observer func(Entry)

// Options configures a Store.
type Options struct {
	// DefaultStaleTime applies to entries whose FetchOptions leave
	// StaleTime zero. Zero selects DefaultStaleTime.
	DefaultStaleTime time.Duration

	// DefaultGCTime is the zero-subscriber grace period before eviction.
	// Zero selects DefaultGCTime.
	DefaultGCTime time.Duration

	// Retryable decides whether a fetch error is worth retrying. When nil,
	// fetch errors are never retried. The CLI wires api.IsTransient here.
	Retryable func(error) bool

	// RetryAttempts is the number of extra attempts for retryable errors.
	// Zero selects the default budget of 2.
	RetryAttempts int

	Logger *slog.Logger
}

// FetchOptions configures a single GetOrFetch call.
type FetchOptions struct {
	// StaleTime overrides the entry's staleness window. Zero keeps the
	// entry's current value.
	StaleTime time.Duration

	// GCTime overrides the entry's eviction grace period. Zero keeps the
	// entry's current value.
	GCTime time.Duration

	// Revalidate treats cached data as stale for this call regardless of
	// age: the cached value is still served immediately, but a background
	// refetch is always triggered. Used for views that must revalidate on
	// every mount.
	Revalidate bool
}

// Store is the query cache: one entry per distinct key, explicit lifecycle,
// fetch deduplication, and prefix invalidation. Construct it once at
// application start and inject it into consumers; there is no package-level
// instance.
type Store struct {
	logger           *slog.Logger
	defaultStaleTime time.Duration
	defaultGCTime    time.Duration
	retryable        func(error) bool
	retryAttempts    int

	// now and sleepFunc are overridden by tests for determinism.
	now       func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	entries        map[string]*entry
	flights        singleflight.Group
	nextObserverID int
}

// New creates a Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	staleTime := opts.DefaultStaleTime
	if staleTime <= 0 {
		staleTime = DefaultStaleTime
	}

	gcTime := opts.DefaultGCTime
	if gcTime <= 0 {
		gcTime = DefaultGCTime
	}

	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	return &Store{
		logger:           logger,
		defaultStaleTime: staleTime,
		defaultGCTime:    gcTime,
		retryable:        opts.Retryable,
		retryAttempts:    attempts,
		now:              time.Now,
		sleepFunc:        sleepContext,
		entries:          make(map[string]*entry),
	}
}

// Read returns a snapshot of the entry for key, if one exists. Pure lookup;
// no fetch is triggered and no lifecycle state changes.
func (s *Store) Read(key Key) (Entry, bool) {
	segs, err := canonicalize(key)
	if err != nil {
		return Entry{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[joinSegments(segs)]
	if !ok {
		return Entry{}, false
	}

	return e.snapshotLocked(s.now()), true
}

// GetOrFetch returns the value for key:
//
//   - fresh cache hit: the cached value, no network call;
//   - stale cache hit: the cached value immediately, plus exactly one
//     background revalidation (unless one is already in flight);
//   - miss (or an error entry with no data): a blocking fetch, deduplicated
//     so concurrent callers for the same key share one fetchFn call.
//
// A completed fetch commits only while its sequence number still matches
// the entry's; results superseded by invalidation or a newer fetch are
// discarded without surfacing, because a newer authoritative result is
// already in flight or landed.
func (s *Store) GetOrFetch(ctx context.Context, key Key, fn FetchFunc, opts FetchOptions) (any, error) {
	segs, err := canonicalize(key)
	if err != nil {
		return nil, err
	}

	id := joinSegments(segs)

	s.mu.Lock()

	e := s.ensureLocked(key, segs, id)
	applyFetchOptions(e, opts)
	e.fetchFn = fn

	if e.hasData {
		data := e.data
		if opts.Revalidate || e.staleLocked(s.now()) {
			s.revalidateLocked(e)
		}

		s.mu.Unlock()

		return data, nil
	}

	s.mu.Unlock()

	return s.fetch(ctx, id)
}

// fetch runs (or joins) the deduplicated fetch flight for id.
func (s *Store) fetch(ctx context.Context, id string) (any, error) {
	v, err, _ := s.flights.Do(id, func() (any, error) {
		s.mu.Lock()

		e, ok := s.entries[id]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("querycache: entry evicted before fetch could start")
		}

		e.requestSeq++
		seq := e.requestSeq
		e.inFlightSeq = seq
		e.status = StatusFetching
		fn := e.fetchFn
		key := e.key
		s.mu.Unlock()

		data, fetchErr := s.runFetch(ctx, key, fn)
		s.commit(id, seq, data, fetchErr)

		if fetchErr != nil {
			return nil, fetchErr
		}

		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}

// revalidateLocked schedules a background refetch for e unless a fetch for
// the entry's current sequence is already in flight. Caller holds the mutex.
func (s *Store) revalidateLocked(e *entry) {
	if e.inFlightSeq != 0 && e.inFlightSeq == e.requestSeq {
		return
	}

	if e.fetchFn == nil {
		return
	}

	s.logger.Debug("background revalidation", slog.String("key", e.key.String()))

	id := e.id

	// Errors land on the entry via commit; the background path has no
	// caller to surface them to.
	go func() {
		_, _ = s.fetch(context.Background(), id)
	}()
}

// commit stores a fetch outcome on the entry, unless the result has been
// superseded, and notifies subscribers outside the lock.
func (s *Store) commit(id string, seq uint64, data any, fetchErr error) {
	s.mu.Lock()

	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	if e.inFlightSeq == seq {
		e.inFlightSeq = 0
	}

	if e.requestSeq != seq {
		// Superseded: a newer fetch for this key was issued while this one
		// was in flight. Drop the result; never regress to an older snapshot.
		if e.inFlightSeq == 0 && e.status == StatusFetching {
			if e.hasData {
				e.status = StatusSuccess
			} else {
				e.status = StatusIdle
			}
		}

		key := e.key
		s.mu.Unlock()

		s.logger.Debug("discarded superseded fetch result",
			slog.String("key", key.String()),
			slog.Uint64("seq", seq),
		)

		return
	}

	if fetchErr != nil {
		e.status = StatusError
		e.err = fetchErr
	} else {
		e.status = StatusSuccess
		e.data = data
		e.hasData = true
		e.err = nil
		e.fetchedAt = s.now()
		e.invalidated = false
	}

	snap := e.snapshotLocked(s.now())

	observers := make([]Observer, 0, len(e.subscribers))
	for _, obs := range e.subscribers {
		observers = append(observers, obs)
	}

	s.mu.Unlock()

	// Observers run outside the lock so they can call back into the store.
	for _, obs := range observers {
		obs(snap)
	}
}

// runFetch executes fn with the transient-retry budget.
func (s *Store) runFetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	var attempt int

	for {
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}

		if s.retryable == nil || !s.retryable(err) || attempt >= s.retryAttempts {
			return nil, err
		}

		backoff := calcBackoff(attempt)
		s.logger.Warn("retrying fetch after transient error",
			slog.String("key", key.String()),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := s.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("querycache: fetch canceled: %w", sleepErr)
		}

		attempt++
	}
}

// ensureLocked returns the entry for id, creating an idle one (with its
// zero-subscriber eviction timer running) if absent. Caller holds the mutex.
func (s *Store) ensureLocked(key Key, segs []string, id string) *entry {
	if e, ok := s.entries[id]; ok {
		return e
	}

	e := &entry{
		key:         key,
		segs:        segs,
		id:          id,
		status:      StatusIdle,
		staleTime:   s.defaultStaleTime,
		gcTime:      s.defaultGCTime,
		subscribers: make(map[int]Observer),
	}

	s.entries[id] = e
	s.scheduleGCLocked(e)

	return e
}

// applyFetchOptions copies non-zero per-call options onto the entry.
func applyFetchOptions(e *entry, opts FetchOptions) {
	if opts.StaleTime > 0 {
		e.staleTime = opts.StaleTime
	}

	if opts.GCTime > 0 {
		e.gcTime = opts.GCTime
	}
}

// calcBackoff computes exponential backoff with ±25% jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(retryBaseBackoff) * math.Pow(retryBackoffFactor, float64(attempt))
	if backoff > float64(retryMaxBackoff) {
		backoff = float64(retryMaxBackoff)
	}

	jitter := backoff * retryJitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// sleepContext waits for the given duration or until the context is
// canceled. Default sleepFunc for Store.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
