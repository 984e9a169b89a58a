// Package db provides shared Postgres helpers for the output sink and the run
// history store: pool setup, table creation, transactional reloads and bulk upsert.
package db

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of *pgxpool.Pool used by this module.
// pgxmock.PgxPoolIface satisfies it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PoolConfig tunes a pool. The zero value gives 1 to 4 connections.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	// AppName is reported as application_name unless the DSN sets one.
	AppName string `yaml:"app_name" mapstructure:"app_name"`
	// StatementTimeout bounds every statement server-side; zero leaves the
	// server default.
	StatementTimeout time.Duration `yaml:"statement_timeout" mapstructure:"statement_timeout"`
}

func (c *PoolConfig) apply(pgxCfg *pgxpool.Config) {
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	if c == nil {
		return
	}
	if c.MaxConns > 0 {
		pgxCfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pgxCfg.MinConns = min(c.MinConns, pgxCfg.MaxConns)
	}
	params := pgxCfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok && c.AppName != "" {
		params["application_name"] = c.AppName
	}
	if c.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)
	}
}

// Connect opens a pgx pool against connString and pings it.
func Connect(ctx context.Context, connString string, poolCfg *PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse config")
	}
	poolCfg.apply(pgxCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "db: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping")
	}
	return pool, nil
}
