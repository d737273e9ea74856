package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Block is a single immutable ledger entry.
type Block struct {
	Index        int       `json:"index"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousHash string    `json:"previousHash"`
	Data         Payload   `json:"data"`
	Hash         string    `json:"hash"`
}

// Clone returns a deep copy of b. Stores hand out clones only.
func (b *Block) Clone() *Block {
	c := *b
	c.Data = b.Data.Clone()
	return &c
}

// now is the ledger clock. Timestamps are UTC at microsecond precision so
// that every backend stores them without loss.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewGenesis builds block 0.
func NewGenesis() *Block {
	b := &Block{
		Index:        0,
		Timestamp:    now(),
		PreviousHash: GenesisHash,
		Data:         Payload{Action: ActionGenesis},
	}
	b.Hash = HashBlock(b)
	return b
}

// NextBlock builds the block that follows tail. The timestamp never goes
// backwards, even if the wall clock does.
func NextBlock(tail *Block, p Payload) (*Block, error) {
	if err := CheckPayload(p); err != nil {
		return nil, err
	}
	ts := now()
	if ts.Before(tail.Timestamp) {
		ts = tail.Timestamp
	}
	b := &Block{
		Index:        tail.Index + 1,
		Timestamp:    ts,
		PreviousHash: tail.Hash,
		Data:         p.Clone(),
	}
	b.Hash = HashBlock(b)
	return b, nil
}

// CheckPayload rejects payloads that may not be appended after genesis.
func CheckPayload(p Payload) error {
	if !p.Action.Valid() {
		return fmt.Errorf("%w: action %q", ErrInvalidPayload, p.Action)
	}
	if p.BatchID == "" {
		return fmt.Errorf("%w: missing batch id", ErrInvalidPayload)
	}
	for _, f := range p.canonicalFields() {
		values := f.list
		if f.kind != kindStrings {
			values = []string{f.str}
		}
		for _, v := range values {
			if err := CheckText(v); err != nil {
				return fmt.Errorf("%w: %s %v", ErrInvalidPayload, f.key, err)
			}
		}
	}
	return nil
}

// CheckText rejects strings that a JSON or PostgreSQL backend would not
// store byte for byte: invalid UTF-8 and NUL characters.
func CheckText(s string) error {
	if !utf8.ValidString(s) {
		return errInvalidUTF8
	}
	if strings.IndexByte(s, 0) >= 0 {
		return errNUL
	}
	return nil
}
