package kvstore

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Pebble is a KV backed by cockroachdb/pebble.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

// NewMemPebble returns a pebble database on an in-memory filesystem.
func NewMemPebble() (*Pebble, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("opening in-memory pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

// Get implements KV. The value is copied before the closer releases it.
func (p *Pebble) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	cloned := append([]byte{}, v...)
	if err := closer.Close(); err != nil {
		return nil, false, err
	}
	return cloned, true, nil
}

// Write implements KV.
func (p *Pebble) Write(pairs ...Pair) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, pr := range pairs {
		if err := b.Set(pr.Key, pr.Value, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// Iterate implements KV.
func (p *Pebble) Iterate(prefix, start []byte, fn func(key, value []byte) error) error {
	lower := prefix
	if start != nil {
		lower = start
	}
	it := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixLimit(prefix),
	})
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			it.Close() //nolint:errcheck
			return err
		}
	}
	if err := it.Error(); err != nil {
		it.Close() //nolint:errcheck
		return err
	}
	return it.Close()
}

// Close implements KV.
func (p *Pebble) Close() error {
	return p.db.Close()
}
