package ledger

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently read blocks in an LRU cache in front of another
// Store. Blocks are immutable once appended, so cached entries never go stale.
type CachedStore struct {
	Store
	blocks *lru.Cache[int, *Block]
}

// NewCachedStore wraps s with a cache of at most size blocks.
func NewCachedStore(s Store, size int) (*CachedStore, error) {
	cache, err := lru.New[int, *Block](size)
	if err != nil {
		return nil, fmt.Errorf("create block cache: %w", err)
	}
	return &CachedStore{Store: s, blocks: cache}, nil
}

// Genesis implements Store.
func (c *CachedStore) Genesis(ctx context.Context) (*Block, error) {
	b, err := c.Store.Genesis(ctx)
	if err != nil {
		return nil, err
	}
	c.blocks.Add(b.Index, b.Clone())
	return b, nil
}

// Append implements Store.
func (c *CachedStore) Append(ctx context.Context, p Payload) (*Block, error) {
	b, err := c.Store.Append(ctx, p)
	if err != nil {
		return nil, err
	}
	c.blocks.Add(b.Index, b.Clone())
	return b, nil
}

// At implements Store.
func (c *CachedStore) At(ctx context.Context, index int) (*Block, error) {
	if b, ok := c.blocks.Get(index); ok {
		return b.Clone(), nil
	}
	b, err := c.Store.At(ctx, index)
	if err != nil {
		return nil, err
	}
	c.blocks.Add(index, b.Clone())
	return b, nil
}

// Scan bypasses the cache: validation must see what the backend holds.
func (c *CachedStore) Scan(ctx context.Context, from int, fn func(*Block) error) error {
	return c.Store.Scan(ctx, from, fn)
}

// All implements Store.
func (c *CachedStore) All(ctx context.Context) ([]*Block, error) {
	return collect(ctx, c.Store)
}
