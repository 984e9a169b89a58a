package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, dsn string) *pgxpool.Config {
	t.Helper()
	c, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	return c
}

func TestPoolConfig_Defaults(t *testing.T) {
	c := parse(t, "postgres://u:p@localhost:5432/firerisk")
	var cfg *PoolConfig
	cfg.apply(c)

	assert.Equal(t, int32(4), c.MaxConns)
	assert.Equal(t, int32(1), c.MinConns)
	assert.Equal(t, 30*time.Minute, c.MaxConnLifetime)
	assert.NotContains(t, c.ConnConfig.RuntimeParams, "application_name")
}

func TestPoolConfig_Overrides(t *testing.T) {
	c := parse(t, "postgres://u:p@localhost:5432/firerisk")
	(&PoolConfig{MaxConns: 2, MinConns: 8, AppName: "firerisk-sink", StatementTimeout: 90 * time.Second}).apply(c)

	assert.Equal(t, int32(2), c.MaxConns)
	assert.Equal(t, int32(2), c.MinConns, "min is capped at max")
	assert.Equal(t, "firerisk-sink", c.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "90000", c.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestPoolConfig_DSNAppNameWins(t *testing.T) {
	c := parse(t, "postgres://u:p@localhost:5432/firerisk?application_name=etl")
	(&PoolConfig{AppName: "firerisk-runs"}).apply(c)

	assert.Equal(t, "etl", c.ConnConfig.RuntimeParams["application_name"])
}
