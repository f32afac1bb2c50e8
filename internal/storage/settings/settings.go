// internal/storage/settings/settings.go
package settings

import (
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a small durable key-value store for client settings.
type Store struct {
	db *badger.DB
}

// OpenOptions configures Open.
type OpenOptions struct {
	Path string
	// InMemory keeps data only for the process lifetime (tests, dry runs).
	InMemory bool
}

// Open opens (or creates) the store at opts.Path.
func Open(opts OpenOptions) (*Store, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) == "":
		return nil, errors.New("settings: path is required")
	default:
		bopts = badger.DefaultOptions(opts.Path)
	}

	db, err := badger.Open(bopts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetString returns the value for key and whether it exists.
func (s *Store) GetString(key string) (string, bool, error) {
	k, err := s.key(key)
	if err != nil {
		return "", false, err
	}

	var (
		out   string
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return out, found, nil
}

// SetString stores value under key.
func (s *Store) SetString(key, value string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(value))
	}); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) key(key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("settings: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, errors.New("settings: key is empty")
	}
	return k, nil
}
