package querycache

import (
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	// StatusIdle means the entry exists (usually via Subscribe) but no
	// fetch has been issued yet.
	StatusIdle Status = "idle"

	// StatusFetching means a fetch for the entry's current sequence is in
	// flight.
	StatusFetching Status = "fetching"

	// StatusSuccess means the last committed fetch stored a payload.
	StatusSuccess Status = "success"

	// StatusError means the last committed fetch failed. Any payload from
	// an earlier success is retained and served stale-while-revalidate.
	StatusError Status = "error"
)

// Entry is an immutable snapshot of a cache entry, as returned by Read and
// delivered to observers. Mutating it has no effect on the store.
type Entry struct {
	Key       Key
	Data      any
	HasData   bool
	Status    Status
	Err       error
	FetchedAt time.Time
	Stale     bool
}

// entry is the store-internal mutable representation. All fields are
// guarded by the store mutex.
type entry struct {
	key  Key
	segs []string
	id   string

	data      any
	hasData   bool
	status    Status
	err       error
	fetchedAt time.Time

	staleTime time.Duration
	gcTime    time.Duration

	// requestSeq counts issued fetches for this key. A fetch result commits
	// only while its sequence still equals requestSeq; invalidation and
	// newer fetches bump the counter, superseding older in-flight results.
	requestSeq uint64

	// inFlightSeq is the sequence of the currently executing fetch, zero
	// when none. Used to avoid scheduling a second background revalidation
	// while the current generation is already being fetched.
	inFlightSeq uint64

	// invalidated marks the entry stale regardless of fetchedAt.
	invalidated bool

	// fetchFn is the most recent fetch function seen for this key, kept so
	// invalidation can refetch subscribed entries without a caller present.
	fetchFn FetchFunc

	subscribers map[int]Observer
	gcTimer     *time.Timer
}

// snapshotLocked builds an Entry snapshot. Caller holds the store mutex.
func (e *entry) snapshotLocked(now time.Time) Entry {
	return Entry{
		Key:       e.key,
		Data:      e.data,
		HasData:   e.hasData,
		Status:    e.status,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		Stale:     e.staleLocked(now),
	}
}

// staleLocked reports whether the entry's data needs revalidation.
// Caller holds the store mutex.
func (e *entry) staleLocked(now time.Time) bool {
	if !e.hasData {
		return true
	}

	if e.invalidated {
		return true
	}

	return now.Sub(e.fetchedAt) >= e.staleTime
}
