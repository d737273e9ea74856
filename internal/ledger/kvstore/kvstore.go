// Package kvstore implements ledger.Store on top of an embedded key-value
// engine. Three engines are provided: goleveldb, pebble and badger.
//
// Layout:
//
//	b:<8-byte big-endian index>  -> JSON-encoded block
//	m:len                        -> 8-byte big-endian ledger length
//
// A block and the length advance are written in one atomic batch, so a crash
// can never leave a block that the length does not cover or vice versa.
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmerrifield20/agriledger/internal/ledger"
	"go.uber.org/zap"
)

var (
	prefixBlock = []byte("b:")
	keyLength   = []byte("m:len")
)

// Pair is one key/value write.
type Pair struct {
	Key   []byte
	Value []byte
}

// KV is the minimal engine surface the ledger needs.
type KV interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// Write applies all pairs atomically and durably.
	Write(pairs ...Pair) error

	// Iterate calls fn for every key with the given prefix, starting at start
	// (inclusive), in ascending key order. fn must not retain key or value.
	Iterate(prefix, start []byte, fn func(key, value []byte) error) error

	Close() error
}

// Store is a ledger.Store persisted in a KV engine.
type Store struct {
	kv     KV
	logger *zap.Logger

	writeMu sync.Mutex   // serialises Genesis and Append
	length  atomic.Int64 // committed ledger length
}

var _ ledger.Store = (*Store)(nil)

// Open loads the committed length from kv and returns a Store over it.
func Open(kv KV, logger *zap.Logger) (*Store, error) {
	s := &Store{kv: kv, logger: logger}
	raw, ok, err := kv.Get(keyLength)
	if err != nil {
		return nil, fmt.Errorf("read ledger length: %w", err)
	}
	if ok {
		if len(raw) != 8 {
			return nil, fmt.Errorf("corrupt ledger length record (%d bytes)", len(raw))
		}
		s.length.Store(int64(binary.BigEndian.Uint64(raw)))
	}
	return s, nil
}

// BlockKey returns the key under which the block at index is stored.
func BlockKey(index int) []byte {
	key := make([]byte, len(prefixBlock)+8)
	copy(key, prefixBlock)
	binary.BigEndian.PutUint64(key[len(prefixBlock):], uint64(index))
	return key
}

func encodeLength(n int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

// Genesis implements ledger.Store.
func (s *Store) Genesis(_ context.Context) (*ledger.Block, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.length.Load() > 0 {
		return nil, ledger.ErrGenesisExists
	}
	g := ledger.NewGenesis()
	if err := s.commit(g); err != nil {
		return nil, err
	}
	s.logger.Info("ledger genesis created", zap.String("hash", g.Hash))
	return g, nil
}

// Append implements ledger.Store.
func (s *Store) Append(ctx context.Context, p ledger.Payload) (*ledger.Block, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n := int(s.length.Load())
	if n == 0 {
		return nil, ledger.ErrEmptyLedger
	}
	tail, err := s.At(ctx, n-1)
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	b, err := ledger.NextBlock(tail, p)
	if err != nil {
		return nil, err
	}
	if err := s.commit(b); err != nil {
		return nil, err
	}
	s.logger.Debug("ledger block appended",
		zap.Int("block_index", b.Index),
		zap.String("action", string(b.Data.Action)),
		zap.String("batch_id", b.Data.BatchID),
	)
	return b, nil
}

// commit writes b and the new length in one batch. Callers hold writeMu.
func (s *Store) commit(b *ledger.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", b.Index, err)
	}
	if err := s.kv.Write(
		Pair{Key: BlockKey(b.Index), Value: raw},
		Pair{Key: keyLength, Value: encodeLength(b.Index + 1)},
	); err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	s.length.Store(int64(b.Index + 1))
	return nil
}

// Tail implements ledger.Store.
func (s *Store) Tail(ctx context.Context) (*ledger.Block, error) {
	n := int(s.length.Load())
	if n == 0 {
		return nil, ledger.ErrEmptyLedger
	}
	return s.At(ctx, n-1)
}

// At implements ledger.Store.
func (s *Store) At(_ context.Context, index int) (*ledger.Block, error) {
	if index < 0 || index >= int(s.length.Load()) {
		return nil, fmt.Errorf("%w: index %d", ledger.ErrNotFound, index)
	}
	raw, ok, err := s.kv.Get(BlockKey(index))
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ledger.ErrNotFound, index)
	}
	return decodeBlock(raw)
}

// Len implements ledger.Store.
func (s *Store) Len(_ context.Context) (int, error) {
	return int(s.length.Load()), nil
}

var errLengthReached = errors.New("length reached")

// Scan implements ledger.Scanner. Blocks past the committed length observed
// at the start of the scan are not visited.
func (s *Store) Scan(ctx context.Context, from int, fn func(*ledger.Block) error) error {
	n := int(s.length.Load())
	if from < 0 {
		from = 0
	}
	if from >= n {
		return nil
	}
	seen := from
	err := s.kv.Iterate(prefixBlock, BlockKey(from), func(_, value []byte) error {
		if seen >= n {
			return errLengthReached
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := decodeBlock(value)
		if err != nil {
			return err
		}
		seen++
		return fn(b)
	})
	if errors.Is(err, errLengthReached) {
		return nil
	}
	return err
}

// All implements ledger.Store.
func (s *Store) All(ctx context.Context) ([]*ledger.Block, error) {
	var out []*ledger.Block
	err := s.Scan(ctx, 0, func(b *ledger.Block) error {
		out = append(out, b)
		return nil
	})
	return out, err
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.kv.Close()
}

func decodeBlock(raw []byte) (*ledger.Block, error) {
	var b ledger.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}

// prefixLimit returns the smallest key greater than every key with prefix,
// or nil when no such key exists.
func prefixLimit(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] < 0xff {
			limit := make([]byte, i+1)
			copy(limit, prefix)
			limit[i]++
			return limit
		}
	}
	return nil
}
