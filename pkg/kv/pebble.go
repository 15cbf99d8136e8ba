package kv

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"communitychat/pkg/logger"
)

// keyPrefix namespaces local settings inside the pebble keyspace.
const keyPrefix = "local:"

// Pebble is a Store persisted in a pebble database on the local disk.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("kv_pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Get(key string) (string, bool) {
	v, closer, err := s.db.Get([]byte(keyPrefix + key))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			logger.Error("kv_get_failed", "key", key, "error", err)
		}
		return "", false
	}
	defer closer.Close()
	return string(v), true
}

func (s *Pebble) Set(key, value string) error {
	if err := s.db.Set([]byte(keyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *Pebble) Remove(key string) error {
	if err := s.db.Delete([]byte(keyPrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("kv remove %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Pebble) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
