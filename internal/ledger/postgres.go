package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls across every process sharing the database.
const advisoryLockKey = int64(2_031_447_809)

const selectBlock = `SELECT idx, ts, prev_hash, data, hash FROM provenance_ledger`

// PostgresStore persists the ledger to a PostgreSQL database.
// Each Append is a single transaction: lock, read tail, insert, commit.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
// The provenance_ledger table is created by cmd/migrate.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Genesis implements Store.
func (s *PostgresStore) Genesis(ctx context.Context) (*Block, error) {
	g := NewGenesis()
	data, err := json.Marshal(g.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal genesis payload: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO provenance_ledger (idx, ts, prev_hash, batch_id, action, data, hash)
		 VALUES (0, $1, $2, NULL, $3, $4, $5)
		 ON CONFLICT (idx) DO NOTHING`,
		g.Timestamp, g.PreviousHash, string(g.Data.Action), data, g.Hash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert genesis block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrGenesisExists
	}
	s.logger.Info("ledger genesis created", zap.String("hash", g.Hash))
	return g, nil
}

// Append implements Store.
// It takes a transaction-scoped advisory lock so that the tail read and the
// insert cannot interleave with another writer. A failed append is rolled
// back entirely and may be retried.
func (s *PostgresStore) Append(ctx context.Context, p Payload) (*Block, error) {
	if err := CheckPayload(p); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	tail, err := scanBlock(tx.QueryRow(ctx, selectBlock+" ORDER BY idx DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmptyLedger
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	b, err := NextBlock(tail, p)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(b.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO provenance_ledger (idx, ts, prev_hash, batch_id, action, data, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.Index, b.Timestamp, b.PreviousHash, b.Data.BatchID,
		string(b.Data.Action), data, b.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert ledger block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger block appended",
		zap.Int("block_index", b.Index),
		zap.String("action", string(b.Data.Action)),
		zap.String("batch_id", b.Data.BatchID),
	)
	return b, nil
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (*Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx, selectBlock+" ORDER BY idx DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmptyLedger
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return b, nil
}

// At implements Store.
func (s *PostgresStore) At(ctx context.Context, index int) (*Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx, selectBlock+" WHERE idx = $1", index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM provenance_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger blocks: %w", err)
	}
	return n, nil
}

// Scan implements Scanner. Rows are streamed, never buffered.
func (s *PostgresStore) Scan(ctx context.Context, from int, fn func(*Block) error) error {
	rows, err := s.pool.Query(ctx, selectBlock+" WHERE idx >= $1 ORDER BY idx ASC", from)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return rows.Err()
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*Block, error) {
	return collect(ctx, s)
}

func scanBlock(row pgx.Row) (*Block, error) {
	var (
		b    Block
		data []byte
	)
	if err := row.Scan(&b.Index, &b.Timestamp, &b.PreviousHash, &data, &b.Hash); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &b.Data); err != nil {
		return nil, fmt.Errorf("decode block %d payload: %w", b.Index, err)
	}
	b.Timestamp = b.Timestamp.UTC()
	return &b, nil
}
