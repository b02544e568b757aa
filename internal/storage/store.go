package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fair-price-alerts/internal/config"
)

// ErrNoDSN is returned by Open when the alert log is not configured.
var ErrNoDSN = errors.New("storage: database.dsn is empty")

// Open connects the alert log, checks the connection and creates the table
// when missing. appName is reported to Postgres as application_name.
func Open(ctx context.Context, cfg config.DatabaseConfig, appName string) (*Store, error) {
	poolConfig, err := newPoolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func newPoolConfig(cfg config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	// the advisory lock pins one connection for the whole run
	if cfg.LockKey != 0 && poolConfig.MaxConns < 2 {
		poolConfig.MaxConns = 2
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = min(int32(cfg.MaxIdleConns), poolConfig.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if appName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return poolConfig, nil
}
