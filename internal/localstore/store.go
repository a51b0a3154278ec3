// Package localstore is the embedded, versioned document store holding
// workspaces, spaces, tabs, settings and window sessions.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

// Table names a logical table of the store.
type Table string

const (
	TableWorkspaces Table = "workspaces"
	TableSpaces     Table = "spaces"
	TableTabs       Table = "tabs"
	TableSettings   Table = "settings"
	TableSessions   Table = "sessions"
	TableDurable    Table = "durable"
)

var (
	bucketWorkspaces   = []byte(TableWorkspaces)
	bucketSpaces       = []byte(TableSpaces)
	bucketTabs         = []byte(TableTabs)
	bucketSettings     = []byte(TableSettings)
	bucketSessions     = []byte(TableSessions)
	bucketDurable      = []byte(TableDurable)
	bucketTabsByWindow = []byte("tabs_by_window")
	bucketMeta         = []byte("meta")
	keySchemaVersion   = []byte("schema_version")
)

// Store is the Local Store. A Store opened with OpenOrDegraded may be degraded:
// reads then return no data and writes fail with schema.ErrStoreUnavailable.
type Store struct {
	db       *bolt.DB
	path     string
	log      pslog.Logger
	openErr  error
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	seq      uint64
}

// Open opens (creating if needed) the store at path and applies pending schema revisions.
func Open(path string, logger pslog.Logger) (*Store, error) {
	return openWithRevisions(path, logger, revisions)
}

// OpenOrDegraded opens the store and falls back to a degraded store on failure.
func OpenOrDegraded(path string, logger pslog.Logger) *Store {
	store, err := Open(path, logger)
	if err == nil {
		return store
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger.Error("local store open failed; running degraded", "path", path, "err", err)
	return &Store{path: path, log: logger, openErr: err, watchers: make(map[*watcher]struct{})}
}

func openWithRevisions(path string, logger pslog.Logger, revs []revision) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("local store path is required")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("store", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := upgrade(db, revs, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, log: logger, watchers: make(map[*watcher]struct{})}, nil
}

// Degraded reports whether the store failed to open.
func (s *Store) Degraded() bool {
	return s == nil || s.db == nil
}

// Err returns the open failure of a degraded store.
func (s *Store) Err() error {
	if s == nil {
		return schema.ErrStoreUnavailable
	}
	return s.openErr
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Version returns the applied schema version.
func (s *Store) Version() (int, error) {
	if s.Degraded() {
		return 0, schema.ErrStoreUnavailable
	}
	var version int
	err := s.db.View(func(tx *bolt.Tx) error {
		version = readVersion(tx)
		return nil
	})
	return version, err
}

// Close closes the database and every watch channel.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	for w := range s.watchers {
		close(w.ch)
		delete(s.watchers, w)
	}
	s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	if s.Degraded() {
		return errDegradedRead
	}
	return s.db.View(fn)
}

func (s *Store) update(tables []Table, fn func(tx *bolt.Tx) error) error {
	if s.Degraded() {
		return schema.ErrStoreUnavailable
	}
	if err := s.db.Update(fn); err != nil {
		return err
	}
	s.notify(tables...)
	return nil
}

// errDegradedRead is swallowed by read helpers so degraded reads yield empty data.
var errDegradedRead = errors.New("degraded read")

func ignoreDegraded(err error) error {
	if errors.Is(err, errDegradedRead) {
		return nil
	}
	return err
}

func getJSON[T any](tx *bolt.Tx, bucket, key []byte) (T, bool, error) {
	var out T
	b := tx.Bucket(bucket)
	if b == nil {
		return out, false, nil
	}
	raw := b.Get(key)
	if raw == nil {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return out, true, nil
}

func putJSON(tx *bolt.Tx, bucket, key []byte, value any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %s missing", bucket)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

func listJSON[T any](tx *bolt.Tx, bucket []byte) ([]T, error) {
	out := make([]T, 0)
	b := tx.Bucket(bucket)
	if b == nil {
		return out, nil
	}
	err := b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
		}
		out = append(out, item)
		return nil
	})
	return out, err
}
