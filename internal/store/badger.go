package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists key-value pairs in an embedded Badger database. It is
// the production Store implementation; counters written here survive process
// restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if necessary) a Badger database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("unable to open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the stored value for key.
func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return nil, false, ErrClosed
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set writes the value for key.
func (s *BadgerStore) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Delete removes the key.
func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
