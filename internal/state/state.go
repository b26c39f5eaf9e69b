// Package state persists per-session delivery bookkeeping in bbolt: the
// set of notification identifiers already rendered to the user and the
// last known-good unread count. A client restart within the same session
// then resumes without re-toasting or re-sounding old notifications.
// This is not message persistence; missed messages are recovered by the
// resync on (re)connect.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

func seenBucket(sessionID string) []byte {
	return []byte("session:" + sessionID + ":seen")
}

func metaBucket(sessionID string) []byte {
	return []byte("session:" + sessionID + ":meta")
}

var lastCountKey = []byte("last_count")

// seenEntry is the stored value for a rendered notification identifier.
// The timestamp exists so stale entries can be pruned.
type seenEntry struct {
	RenderedAt int64 `json:"rendered_at"`
}

// Store wraps a bbolt database holding session delivery state.
type Store struct {
	db *bolt.DB
}

// Load opens the state database at <dir>/state.db, creating directory
// and file as needed.
func Load(dir string) (*Store, error) {
	return LoadAt(filepath.Join(dir, "state.db"))
}

// LoadAt opens a state database at the given path. Useful for tests
// that need an isolated database.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session returns a view of the store bound to one session. Sessions
// never share buckets, so no cross-session state exists.
func (s *Store) Session(sessionID string) *Session {
	return &Session{store: s, id: sessionID}
}

// Session is the per-session face of the store consumed by the reconciler.
type Session struct {
	store *Store
	id    string
}

// MarkSeen records that a notification identifier was rendered.
func (s *Session) MarkSeen(id string) error {
	return s.store.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(seenBucket(s.id))
		if err != nil {
			return err
		}

		data, err := json.Marshal(seenEntry{RenderedAt: time.Now().UnixMilli()})
		if err != nil {
			return err
		}

		return b.Put([]byte(id), data)
	})
}

// Seen reports whether a notification identifier was already rendered.
func (s *Session) Seen(id string) (bool, error) {
	var seen bool

	err := s.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket(s.id))
		if b == nil {
			return nil
		}

		seen = b.Get([]byte(id)) != nil

		return nil
	})

	return seen, err
}

// LoadSeen returns all rendered identifiers for the session. Used to
// seed the reconciler's in-memory set on startup.
func (s *Session) LoadSeen() (map[string]struct{}, error) {
	result := make(map[string]struct{})

	err := s.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket(s.id))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, _ []byte) error {
			result[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetLastCount persists the last known-good authoritative unread count.
func (s *Session) SetLastCount(n int) error {
	return s.store.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket(s.id))
		if err != nil {
			return err
		}

		return b.Put(lastCountKey, []byte(strconv.Itoa(n)))
	})
}

// LastCount returns the persisted unread count. ok is false when the
// session has never stored one.
func (s *Session) LastCount() (n int, ok bool, err error) {
	err = s.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(s.id))
		if b == nil {
			return nil
		}

		v := b.Get(lastCountKey)
		if v == nil {
			return nil
		}

		parsed, perr := strconv.Atoi(string(v))
		if perr != nil {
			return fmt.Errorf("corrupt last_count %q: %w", v, perr)
		}

		n = parsed
		ok = true

		return nil
	})

	return n, ok, err
}

// PruneSeen removes rendered-identifier entries older than maxAge and
// returns how many were dropped. Keeps the seen bucket from growing
// without bound across long-lived sessions.
func (s *Session) PruneSeen(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	pruned := 0

	err := s.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket(s.id))
		if b == nil {
			return nil
		}

		var stale [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var entry seenEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				// Unreadable entries are treated as stale.
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if entry.RenderedAt < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		pruned = len(stale)

		return nil
	})

	return pruned, err
}
