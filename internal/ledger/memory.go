package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store.
// Readers snapshot the slice header under a read lock and then iterate without
// holding it; appended blocks are never modified, so snapshots stay valid.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []Block
}

// NewMemoryStore returns an empty store. Call Genesis before Append.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Genesis implements Store.
func (s *MemoryStore) Genesis(_ context.Context) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) > 0 {
		return nil, ErrGenesisExists
	}
	g := NewGenesis()
	s.blocks = append(s.blocks, *g)
	return g.Clone(), nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, p Payload) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocks) == 0 {
		return nil, ErrEmptyLedger
	}

	b, err := NextBlock(&s.blocks[len(s.blocks)-1], p)
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, *b)
	return b.Clone(), nil
}

// Tail implements Store.
func (s *MemoryStore) Tail(_ context.Context) (*Block, error) {
	blocks := s.snapshot()
	if len(blocks) == 0 {
		return nil, ErrEmptyLedger
	}
	return blocks[len(blocks)-1].Clone(), nil
}

// At implements Store.
func (s *MemoryStore) At(_ context.Context, index int) (*Block, error) {
	blocks := s.snapshot()
	if index < 0 || index >= len(blocks) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return blocks[index].Clone(), nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	return len(s.snapshot()), nil
}

// Scan implements Scanner.
func (s *MemoryStore) Scan(ctx context.Context, from int, fn func(*Block) error) error {
	blocks := s.snapshot()
	if from < 0 {
		from = 0
	}
	for i := from; i < len(blocks); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(blocks[i].Clone()); err != nil {
			return err
		}
	}
	return nil
}

// All implements Store.
func (s *MemoryStore) All(ctx context.Context) ([]*Block, error) {
	return collect(ctx, s)
}

func (s *MemoryStore) snapshot() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[:len(s.blocks):len(s.blocks)]
}
