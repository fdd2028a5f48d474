// Package cache provides the durable local key/value cache backed by
// Pebble. It holds best-effort client state: the pending-message queue and
// per-conversation transcript snapshots. It is not a source of truth; the
// remote store is.
package cache

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"

	"cadence/pkg/logger"
)

// Store wraps a Pebble database opened at a local path. A Store is owned by
// exactly one orchestrator at a time; concurrent writers to the same key
// space are not supported.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_cache_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("cache_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("cache_closed", "path", s.path)
	return err
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Get returns the value stored under key. The second result is false when
// the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	if s.db == nil {
		return "", false, fmt.Errorf("cache not opened; call cache.Open first")
	}
	v, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	out := string(v)
	_ = closer.Close()
	return out, true, nil
}

// Set stores value under key with a synced write.
func (s *Store) Set(key, value string) error {
	if s.db == nil {
		return fmt.Errorf("cache not opened; call cache.Open first")
	}
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		logger.Error("cache_set_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	if s.db == nil {
		return fmt.Errorf("cache not opened; call cache.Open first")
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("cache_remove_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Keys returns all keys with the given prefix in lexical order.
func (s *Store) Keys(prefix string) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("cache not opened; call cache.Open first")
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	p := []byte(prefix)
	var out []string
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}
