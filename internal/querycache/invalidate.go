package querycache

import (
	"fmt"
	"log/slog"
)

// Mutation declares which key prefixes a completed mutation affects.
// Mappings are declared per mutation type at the call site, never inferred,
// and applied strictly after the mutation's success response.
type Mutation struct {
	Operation   string
	Invalidates []Key
}

// Invalidate marks every entry whose key equals or descends from prefix as
// stale. Entries with active subscribers are refetched immediately in the
// background; unsubscribed entries revalidate lazily on next access.
//
// Invalidation also supersedes any in-flight fetch for a matching key: a
// response that was issued before the invalidation may predate the mutation
// that triggered it, so its result must not land as fresh data.
func (s *Store) Invalidate(prefix Key) error {
	prefixSegs, err := canonicalize(prefix)
	if err != nil {
		return err
	}

	s.mu.Lock()

	var stale, refetch int

	for _, e := range s.entries {
		if !hasPrefix(e.segs, prefixSegs) {
			continue
		}

		stale++
		e.invalidated = true
		e.requestSeq++
		s.flights.Forget(e.id)

		if len(e.subscribers) > 0 {
			refetch++
			s.revalidateLocked(e)
		}
	}

	s.mu.Unlock()

	s.logger.Debug("invalidated prefix",
		slog.String("prefix", prefix.String()),
		slog.Int("stale", stale),
		slog.Int("refetching", refetch),
	)

	return nil
}

// OnMutationSuccess applies the mutation's declared invalidation prefixes
// in one pass.
func (s *Store) OnMutationSuccess(m Mutation) error {
	for _, prefix := range m.Invalidates {
		if err := s.Invalidate(prefix); err != nil {
			return fmt.Errorf("querycache: invalidating %s after %s: %w", prefix, m.Operation, err)
		}
	}

	s.logger.Debug("mutation invalidation pass complete",
		slog.String("operation", m.Operation),
		slog.Int("prefixes", len(m.Invalidates)),
	)

	return nil
}

// Evict removes the entry for key, canceling its eviction timer and
// forgetting any in-flight fetch. A result landing after eviction is
// dropped by commit.
func (s *Store) Evict(key Key) error {
	segs, err := canonicalize(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(joinSegments(segs))

	return nil
}

// evictLocked removes an entry by id. Caller holds the mutex.
func (s *Store) evictLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}

	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}

	delete(s.entries, id)
	s.flights.Forget(id)
}

// Len returns the number of live cache entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
