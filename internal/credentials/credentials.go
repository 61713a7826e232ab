// Package credentials persists the access/refresh token pair for the opsdesk
// backend. It is the only component that reads or writes persisted
// credentials; everything else goes through Get/Set/Clear. This is a leaf
// package imported by both api/ and the CLI to avoid an import cycle.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// FilePerms restricts the credential database to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// openTimeout bounds how long Open waits for the bolt file lock, so a
// second process does not hang forever on a locked database.
const openTimeout = 1 * time.Second

// Bucket and slot names. The two slots are always written and cleared
// together; a pair is never half-present.
var (
	bucketCredentials = []byte("credentials")
	slotAccess        = []byte("access-token")
	slotRefresh       = []byte("refresh-token")
)

// TokenPair is the persisted credential pair. The access token is attached
// to every outgoing request; the refresh token is used only by the refresh
// exchange. Contents are opaque to this package — no validation is done here.
type TokenPair struct {
	Access  string
	Refresh string
}

// Store holds the credential pair in an embedded bolt database.
// Safe for concurrent use.
type Store struct {
	db *bolt.DB

	mu      sync.Mutex
	onClear []func()
}

// Open creates or opens the credential store at the given path, creating
// parent directories as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return nil, fmt.Errorf("credentials: creating directory %s: %w", dir, err)
	}

	db, err := bolt.Open(path, FilePerms, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("credentials: opening %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, bktErr := tx.CreateBucketIfNotExists(bucketCredentials)
		return bktErr
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("credentials: initializing %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Get returns the stored token pair. The second return value is false when
// no credentials are stored (not logged in).
func (s *Store) Get() (TokenPair, bool, error) {
	var pair TokenPair

	var present bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)

		access := b.Get(slotAccess)
		if access == nil {
			return nil
		}

		present = true
		pair.Access = string(access)
		pair.Refresh = string(b.Get(slotRefresh))

		return nil
	})
	if err != nil {
		return TokenPair{}, false, fmt.Errorf("credentials: reading: %w", err)
	}

	return pair, present, nil
}

// Set stores the token pair. Both slots are written in a single transaction.
// Never logs token values.
func (s *Store) Set(pair TokenPair) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)

		if putErr := b.Put(slotAccess, []byte(pair.Access)); putErr != nil {
			return putErr
		}

		return b.Put(slotRefresh, []byte(pair.Refresh))
	})
	if err != nil {
		return fmt.Errorf("credentials: writing: %w", err)
	}

	return nil
}

// Clear removes both slots in a single transaction and then invokes every
// registered OnClear hook. Idempotent: clearing an empty store still
// succeeds and still fires the hooks, so a caller reacting to a rejected
// refresh always gets its logout signal.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)

		if delErr := b.Delete(slotAccess); delErr != nil {
			return delErr
		}

		return b.Delete(slotRefresh)
	})
	if err != nil {
		return fmt.Errorf("credentials: clearing: %w", err)
	}

	s.mu.Lock()
	hooks := make([]func(), len(s.onClear))
	copy(hooks, s.onClear)
	s.mu.Unlock()

	// Hooks run outside the lock and outside the bolt transaction.
	for _, fn := range hooks {
		fn()
	}

	return nil
}

// OnClear registers a hook invoked after credentials are cleared. The CLI
// uses this to tell the user to log in again; the original application
// navigated to the login screen from the same signal.
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onClear = append(s.onClear, fn)
}
