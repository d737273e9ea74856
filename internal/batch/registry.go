// Package batch indexes ledger blocks by batch ID.
//
// The Registry is a derived view over the ledger: for each batch it keeps the
// ascending indices of the blocks that carry its ID plus the stage of the most
// recent one. It never owns blocks; Thread resolves indices through the
// ledger.Store. Batches live in a red-black tree keyed by ID, so lookups are
// O(log n) and listing is ordered without sorting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	rbt "github.com/emirpasic/gods/trees/redblacktree"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

// ErrNotFound is returned for a batch ID with no blocks.
var ErrNotFound = errors.New("batch not found")

// thread is the per-batch index entry.
type thread struct {
	indices []int
	stage   ledger.Stage
}

// Summary describes one batch.
type Summary struct {
	BatchID string       `json:"batchId"`
	Stage   ledger.Stage `json:"stage"`
	Blocks  int          `json:"blocks"`
}

// Registry maps batch IDs to their block indices and current stage.
type Registry struct {
	blocks ledger.Store

	mu      sync.RWMutex
	threads *rbt.Tree // batch ID -> *thread
}

// NewRegistry returns an empty registry resolving blocks through s.
// Call Rebuild to populate it from an existing ledger.
func NewRegistry(s ledger.Store) *Registry {
	return &Registry{blocks: s, threads: rbt.NewWithStringComparator()}
}

// RegisterOrAppend records that the block at blockIndex belongs to batchID
// and moved it into stage. Indices must arrive in ascending order per batch.
func (r *Registry) RegisterOrAppend(batchID string, blockIndex int, stage ledger.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(r.threads, batchID, blockIndex, stage)
}

func register(tree *rbt.Tree, batchID string, blockIndex int, stage ledger.Stage) error {
	if v, ok := tree.Get(batchID); ok {
		th := v.(*thread)
		if last := th.indices[len(th.indices)-1]; blockIndex <= last {
			return fmt.Errorf("batch %s: block %d does not follow block %d", batchID, blockIndex, last)
		}
		th.indices = append(th.indices, blockIndex)
		th.stage = stage
		return nil
	}
	tree.Put(batchID, &thread{indices: []int{blockIndex}, stage: stage})
	return nil
}

// CurrentStage returns the stage of the batch's most recent block.
func (r *Registry) CurrentStage(batchID string) (ledger.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.threads.Get(batchID)
	if !ok {
		return "", false
	}
	return v.(*thread).stage, true
}

// Indices returns a copy of the batch's block indices.
func (r *Registry) Indices(batchID string) ([]int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.threads.Get(batchID)
	if !ok {
		return nil, false
	}
	return append([]int(nil), v.(*thread).indices...), true
}

// Thread returns the batch's blocks in ascending index order.
func (r *Registry) Thread(ctx context.Context, batchID string) ([]*ledger.Block, error) {
	indices, ok := r.Indices(batchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	out := make([]*ledger.Block, 0, len(indices))
	for _, idx := range indices {
		b, err := r.blocks.At(ctx, idx)
		if err != nil {
			return nil, fmt.Errorf("resolve block %d of batch %s: %w", idx, batchID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Batches lists every batch ordered by ID.
func (r *Registry) Batches() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, r.threads.Size())
	for it := r.threads.Iterator(); it.Next(); {
		th := it.Value().(*thread)
		out = append(out, Summary{BatchID: it.Key().(string), Stage: th.stage, Blocks: len(th.indices)})
	}
	return out
}

// Len returns the number of batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads.Size()
}

// Rebuild replaces the index with one built by a full scan of the ledger.
func (r *Registry) Rebuild(ctx context.Context) error {
	tree, err := scan(ctx, r.blocks)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.threads = tree
	r.mu.Unlock()
	return nil
}

// Diff compares the live index to a fresh scan of the ledger and returns the
// IDs of batches whose entries disagree, in ID order.
func (r *Registry) Diff(ctx context.Context) ([]string, error) {
	fresh, err := scan(ctx, r.blocks)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var drift []string
	for it := fresh.Iterator(); it.Next(); {
		id := it.Key().(string)
		live, ok := r.threads.Get(id)
		if !ok || !sameThread(live.(*thread), it.Value().(*thread)) {
			drift = append(drift, id)
		}
	}
	for it := r.threads.Iterator(); it.Next(); {
		if _, ok := fresh.Get(it.Key()); !ok {
			drift = append(drift, it.Key().(string))
		}
	}
	sort.Strings(drift)
	return drift, nil
}

func scan(ctx context.Context, s ledger.Scanner) (*rbt.Tree, error) {
	tree := rbt.NewWithStringComparator()
	err := s.Scan(ctx, 1, func(b *ledger.Block) error {
		stage, ok := b.Data.Action.Stage()
		if !ok || b.Data.BatchID == "" {
			return nil
		}
		return register(tree, b.Data.BatchID, b.Index, stage)
	})
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return tree, nil
}

func sameThread(a, b *thread) bool {
	if a.stage != b.stage || len(a.indices) != len(b.indices) {
		return false
	}
	for i := range a.indices {
		if a.indices[i] != b.indices[i] {
			return false
		}
	}
	return true
}
