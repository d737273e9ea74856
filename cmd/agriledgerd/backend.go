package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/ledger/kvstore"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
)

// backend is an opened ledger store plus whatever must be released on exit.
type backend struct {
	name  string
	store ledger.Store
	release func()
}

// openBackend builds the ledger store selected by ledger.backend. Persistent
// backends are fronted by an LRU block cache when ledger.cache_size > 0.
func openBackend(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*backend, error) {
	name := v.GetString("ledger.backend")
	var (
		store   ledger.Store
		release = func() {}
	)

	switch name {
	case backendMemory:
		logger.Warn("using in-memory ledger; blocks are lost on exit")
		return &backend{name: name, store: ledger.NewMemoryStore(), release: release}, nil

	case backendPostgres:
		pool, err := pgxpool.New(ctx, v.GetString("database.url"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		store = ledger.NewPostgresStore(pool, logger)
		release = pool.Close

	case kvstore.EngineLevelDB, kvstore.EnginePebble, kvstore.EngineBadger:
		path := v.GetString("ledger.path")
		kv, err := kvstore.OpenEngine(name, path)
		if err != nil {
			return nil, fmt.Errorf("open %s ledger at %s: %w", name, path, err)
		}
		s, err := kvstore.Open(kv, logger)
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		logger.Info("opened ledger", zap.String("engine", name), zap.String("path", path))
		store = s
		release = func() {
			if err := s.Close(); err != nil {
				logger.Error("close ledger", zap.Error(err))
			}
		}

	default:
		return nil, fmt.Errorf("unknown ledger backend %q", name)
	}

	if size := v.GetInt("ledger.cache_size"); size > 0 {
		cached, err := ledger.NewCachedStore(store, size)
		if err != nil {
			release()
			return nil, err
		}
		store = cached
	}
	return &backend{name: name, store: store, release: release}, nil
}
