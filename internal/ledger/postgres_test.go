package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// row stands in for a provenance_ledger row as returned by pgx.
type row struct {
	idx      int
	ts       time.Time
	prevHash string
	data     []byte
	hash     string
}

func (r row) Scan(dest ...any) error {
	if len(dest) != 5 {
		return errors.New("unexpected column count")
	}
	*dest[0].(*int) = r.idx
	*dest[1].(*time.Time) = r.ts
	*dest[2].(*string) = r.prevHash
	*dest[3].(*[]byte) = r.data
	*dest[4].(*string) = r.hash
	return nil
}

func rowOf(t *testing.T, b *Block) row {
	t.Helper()
	data, err := json.Marshal(b.Data)
	if err != nil {
		t.Fatal(err)
	}
	// pgx returns TIMESTAMPTZ in the session time zone.
	return row{idx: b.Index, ts: b.Timestamp.In(time.FixedZone("IST", 5*3600+1800)), prevHash: b.PreviousHash, data: data, hash: b.Hash}
}

func TestScanBlock_roundTripKeepsHash(t *testing.T) {
	g := NewGenesis()
	b, err := NextBlock(g, Payload{
		Action:         ActionAggregated,
		BatchID:        "LOT-7",
		LotID:          "LOT-7",
		Grade:          "A",
		MemberBatchIDs: []string{"B1", "B2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var prev *Block
	for i, want := range []*Block{g, b} {
		got, err := scanBlock(rowOf(t, want))
		if err != nil {
			t.Fatalf("scanBlock(%d): %v", want.Index, err)
		}
		if got.Timestamp.Location() != time.UTC {
			t.Errorf("block %d: timestamp not normalised to UTC", want.Index)
		}
		if h := HashBlock(got); h != want.Hash {
			t.Errorf("block %d: recomputed hash %s, want %s", want.Index, h, want.Hash)
		}
		if reason := checkBlock(prev, got, i); reason != "" {
			t.Errorf("block %d fails validation after a round trip: %s", i, reason)
		}
		prev = got
	}
}

func TestScanBlock_badPayload(t *testing.T) {
	r := rowOf(t, NewGenesis())
	r.data = []byte(`{"action":`)
	if _, err := scanBlock(r); err == nil {
		t.Fatal("expected a decode error for a truncated payload")
	}
}

func TestPostgresAppend_rejectsUnstorableText(t *testing.T) {
	// The payload check runs before the pool is touched.
	s := NewPostgresStore(nil, zap.NewNop())
	for _, p := range []Payload{
		{Action: ActionSeedCreated, BatchID: "B1", Variety: "JS\x009560"},
		{Action: ActionSeedCreated, BatchID: "B1", Variety: "JS\xff9560"},
	} {
		if _, err := s.Append(context.Background(), p); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Append(%q): got %v, want ErrInvalidPayload", p.Variety, err)
		}
	}
}
