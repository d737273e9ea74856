package ledger

import "context"

// Scanner streams blocks in index order. fn must not retain the block past
// the call unless it clones it; returning an error from fn stops the scan and
// that error is returned from Scan.
type Scanner interface {
	Scan(ctx context.Context, from int, fn func(*Block) error) error
}

// Store is the append-only block sequence. All implementations serialise
// Append so that exactly one block links to any given predecessor.
type Store interface {
	Scanner

	// Genesis creates block 0. It fails with ErrGenesisExists on a ledger
	// that already has one.
	Genesis(ctx context.Context) (*Block, error)

	// Append links a new block to the current tail and returns it.
	// It fails with ErrEmptyLedger before Genesis.
	Append(ctx context.Context, p Payload) (*Block, error)

	// Tail returns the most recent block.
	Tail(ctx context.Context) (*Block, error)

	// At returns the block at the given index, or ErrNotFound.
	At(ctx context.Context, index int) (*Block, error)

	// Len returns the number of blocks, genesis included.
	Len(ctx context.Context) (int, error)

	// All returns every block in index order.
	All(ctx context.Context) ([]*Block, error)
}

// collect implements All on top of Scan.
func collect(ctx context.Context, s Scanner) ([]*Block, error) {
	var out []*Block
	err := s.Scan(ctx, 0, func(b *Block) error {
		out = append(out, b.Clone())
		return nil
	})
	return out, err
}
