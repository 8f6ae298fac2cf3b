// Package database provides the Postgres connection pool and schema
// migrations.
package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx connection pool and verifies it with a ping.
// environment toggles local-development DSN adjustments.
func NewPool(ctx context.Context, dsn, environment string) (*pgxpool.Pool, error) {
	dsn = normalizeDSN(dsn, environment)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 25
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// normalizeDSN disables SSL for local development and forces the simple
// query protocol in production, where a transaction pooler in front of
// Postgres breaks server-side prepared statements.
func normalizeDSN(dsn, environment string) string {
	if environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	if environment != "development" && !strings.Contains(dsn, "default_query_exec_mode") {
		dsn += dsnSeparator(dsn) + "default_query_exec_mode=simple_protocol"
	}
	return dsn
}

func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}
