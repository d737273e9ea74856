package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

var ctx = context.Background()

func newLedger(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	s := ledger.NewMemoryStore()
	if _, err := s.Genesis(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(batchID string) ledger.Payload {
	return ledger.Payload{Action: ledger.ActionSeedCreated, BatchID: batchID, Variety: "JS-9560"}
}

func TestGenesis_blockZero(t *testing.T) {
	s := ledger.NewMemoryStore()
	g, err := s.Genesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Index != 0 {
		t.Errorf("genesis index: got %d, want 0", g.Index)
	}
	if g.PreviousHash != ledger.GenesisHash {
		t.Errorf("genesis previous hash: got %q, want GenesisHash", g.PreviousHash)
	}
	if g.Hash != ledger.HashBlock(g) {
		t.Errorf("genesis hash is not the recomputation of its fields")
	}
	if g.Data.Action != ledger.ActionGenesis {
		t.Errorf("genesis action: got %q", g.Data.Action)
	}
}

func TestGenesis_secondCallFails(t *testing.T) {
	s := newLedger(t)
	if _, err := s.Genesis(ctx); !errors.Is(err, ledger.ErrGenesisExists) {
		t.Fatalf("second Genesis: got %v, want ErrGenesisExists", err)
	}
	n, _ := s.Len(ctx)
	if n != 1 {
		t.Errorf("ledger length after second Genesis: got %d, want 1", n)
	}
}

func TestAppend_beforeGenesis(t *testing.T) {
	s := ledger.NewMemoryStore()
	if _, err := s.Append(ctx, seed("B1")); !errors.Is(err, ledger.ErrEmptyLedger) {
		t.Fatalf("Append before Genesis: got %v, want ErrEmptyLedger", err)
	}
	if _, err := s.Tail(ctx); !errors.Is(err, ledger.ErrEmptyLedger) {
		t.Fatalf("Tail before Genesis: got %v, want ErrEmptyLedger", err)
	}
	if _, err := ledger.Validate(ctx, s); !errors.Is(err, ledger.ErrEmptyLedger) {
		t.Fatalf("Validate before Genesis: got %v, want ErrEmptyLedger", err)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	s := newLedger(t)

	b1, err := s.Append(ctx, seed("B1"))
	if err != nil {
		t.Fatal(err)
	}
	b2, err := s.Append(ctx, ledger.Payload{Action: ledger.ActionHarvestSold, BatchID: "B1", FarmerID: "F1", Quantity: 50})
	if err != nil {
		t.Fatal(err)
	}

	if b1.Index != 1 || b2.Index != 2 {
		t.Errorf("indices: got %d, %d; want 1, 2", b1.Index, b2.Index)
	}
	if b2.PreviousHash != b1.Hash {
		t.Errorf("chain broken: b2.PreviousHash=%q, want b1.Hash=%q", b2.PreviousHash, b1.Hash)
	}
	if b2.Timestamp.Before(b1.Timestamp) {
		t.Errorf("timestamps went backwards: %v then %v", b1.Timestamp, b2.Timestamp)
	}

	tail, err := s.Tail(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tail.Hash != b2.Hash {
		t.Errorf("Tail(): got %q, want %q", tail.Hash, b2.Hash)
	}
}

func TestAppend_rejectsInvalidPayload(t *testing.T) {
	s := newLedger(t)
	cases := []ledger.Payload{
		{Action: ledger.ActionGenesis, BatchID: "B1"},
		{Action: "HARVESTED", BatchID: "B1"},
		{Action: ledger.ActionSeedCreated},
		{Action: ledger.ActionSeedCreated, BatchID: "B1", Variety: "JS\xff9560"},
		{Action: ledger.ActionSeedCreated, BatchID: "B\xfe1", Variety: "JS-9560"},
		{Action: ledger.ActionSeedCreated, BatchID: "B1", Variety: "JS\x009560"},
		{Action: ledger.ActionAggregated, BatchID: "L1", LotID: "L1", MemberBatchIDs: []string{"B1", "B\xff2"}},
	}
	for _, p := range cases {
		if _, err := s.Append(ctx, p); !errors.Is(err, ledger.ErrInvalidPayload) {
			t.Errorf("Append(%+v): got %v, want ErrInvalidPayload", p, err)
		}
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("rejected appends changed ledger length to %d", n)
	}
}

func TestAppend_timestampNeverGoesBackwards(t *testing.T) {
	s := newLedger(t)
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := ledger.SetClock(func() time.Time { return base })
	b1, err := s.Append(ctx, seed("B1"))
	restore()
	if err != nil {
		t.Fatal(err)
	}

	restore = ledger.SetClock(func() time.Time { return base.Add(-time.Hour) })
	defer restore()
	b2, err := s.Append(ctx, seed("B2"))
	if err != nil {
		t.Fatal(err)
	}
	if !b2.Timestamp.Equal(b1.Timestamp) {
		t.Errorf("clock skew: got %v, want clamped to %v", b2.Timestamp, b1.Timestamp)
	}
	if err := ledger.Verify(ctx, s); err != nil {
		t.Errorf("Verify() after clock skew: %v", err)
	}
}

func TestAt_returnsCopy(t *testing.T) {
	s := newLedger(t)
	_, err := s.Append(ctx, ledger.Payload{
		Action: ledger.ActionAggregated, BatchID: "B1", LotID: "L1",
		MemberBatchIDs: []string{"B2", "B3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	b, _ := s.At(ctx, 1)
	b.Data.LotID = "forged"
	b.Data.MemberBatchIDs[0] = "forged"

	again, _ := s.At(ctx, 1)
	if again.Data.LotID != "L1" || again.Data.MemberBatchIDs[0] != "B2" {
		t.Errorf("mutating a returned block changed the store: %+v", again.Data)
	}
	if err := ledger.Verify(ctx, s); err != nil {
		t.Errorf("Verify() after caller-side mutation: %v", err)
	}
}

func TestAt_notFound(t *testing.T) {
	s := newLedger(t)
	for _, idx := range []int{-1, 1, 99} {
		if _, err := s.At(ctx, idx); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("At(%d): got %v, want ErrNotFound", idx, err)
		}
	}
}

func TestAll_inIndexOrder(t *testing.T) {
	s := newLedger(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, seed(fmt.Sprintf("B%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Fatalf("All(): got %d blocks, want 6", len(all))
	}
	for i, b := range all {
		if b.Index != i {
			t.Errorf("All()[%d].Index = %d", i, b.Index)
		}
	}
}

func TestAppend_concurrentProducesLinearChain(t *testing.T) {
	s := newLedger(t)
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, seed(fmt.Sprintf("B%d", i))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n+1 {
		t.Fatalf("got %d blocks, want %d", len(all), n+1)
	}
	prevHashes := make(map[string]int)
	for i, b := range all {
		if b.Index != i {
			t.Errorf("block %d has index %d", i, b.Index)
		}
		if j, dup := prevHashes[b.PreviousHash]; dup {
			t.Errorf("blocks %d and %d share previous hash", j, i)
		}
		prevHashes[b.PreviousHash] = i
	}
	if err := ledger.Verify(ctx, s); err != nil {
		t.Errorf("Verify() after concurrent appends: %v", err)
	}
}
