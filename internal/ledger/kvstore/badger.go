package kvstore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a KV backed by dgraph-io/badger.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database in dir.
func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithSyncWrites(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// NewMemBadger returns a badger database held entirely in memory.
func NewMemBadger() (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Get implements KV.
func (b *Badger) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
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
		return nil, false, err
	}
	return value, true, nil
}

// Write implements KV.
func (b *Badger) Write(pairs ...Pair) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, p := range pairs {
			if err := txn.Set(p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Iterate implements KV.
func (b *Badger) Iterate(prefix, start []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if start != nil {
			seek = start
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if err := item.Value(func(v []byte) error {
				return fn(key, v)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements KV.
func (b *Badger) Close() error {
	return b.db.Close()
}
