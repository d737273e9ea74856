package kvstore

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a KV backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a goleveldb database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{NoSync: false})
	if err != nil {
		return nil, fmt.Errorf("opening leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemLevelDB returns a goleveldb database held entirely in memory.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Get implements KV.
func (l *LevelDB) Get(key []byte) ([]byte, bool, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Write implements KV.
func (l *LevelDB) Write(pairs ...Pair) error {
	batch := new(leveldb.Batch)
	for _, p := range pairs {
		batch.Put(p.Key, p.Value)
	}
	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// Iterate implements KV.
func (l *LevelDB) Iterate(prefix, start []byte, fn func(key, value []byte) error) error {
	r := util.BytesPrefix(prefix)
	if start != nil {
		r.Start = start
	}
	it := l.db.NewIterator(r, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// Close implements KV.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
