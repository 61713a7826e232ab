package querycache

import (
	"log/slog"
	"sync"
	"time"
)

// Subscribe registers an observer for key and pins the entry against
// eviction while at least one subscriber remains. The observer is called
// with an entry snapshot after every committed fetch for the key.
//
// The returned function unsubscribes; calling it more than once is safe.
// When the last subscriber leaves, the entry's gcTime timer starts and the
// entry is evicted unless a new subscriber appears first.
func (s *Store) Subscribe(key Key, obs Observer) (func(), error) {
	segs, err := canonicalize(key)
	if err != nil {
		return nil, err
	}

	id := joinSegments(segs)

	s.mu.Lock()

	e := s.ensureLocked(key, segs, id)

	// A live subscriber cancels any pending eviction.
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}

	s.nextObserverID++
	obsID := s.nextObserverID
	e.subscribers[obsID] = obs

	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() { s.unsubscribe(id, obsID) })
	}, nil
}

// unsubscribe drops one observer; the last one out starts the eviction timer.
func (s *Store) unsubscribe(id string, obsID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}

	delete(e.subscribers, obsID)

	if len(e.subscribers) == 0 {
		s.scheduleGCLocked(e)
	}
}

// scheduleGCLocked starts (or restarts) the zero-subscriber eviction timer.
// Caller holds the mutex.
func (s *Store) scheduleGCLocked(e *entry) {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}

	id := e.id
	e.gcTimer = time.AfterFunc(e.gcTime, func() { s.gcExpired(id) })
}

// gcExpired evicts the entry unless a subscriber arrived after the timer
// was scheduled. The subscriber check under the lock makes a racing
// resubscription safe even if the timer callback has already fired.
func (s *Store) gcExpired(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || len(e.subscribers) > 0 {
		return
	}

	s.logger.Debug("evicting idle cache entry", slog.String("key", e.key.String()))

	delete(s.entries, id)
	s.flights.Forget(id)
}
