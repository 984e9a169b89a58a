package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firerisk-cli/internal/config"
	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/store"
)

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", SQLitePath: dsn}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err, "store is migrated")
	assert.Empty(t, runs)
}

func TestInitStore_SQLiteDefaultPath(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "firerisk-runs.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_PostgresWithoutURL(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestOpenSink_UnknownFormat(t *testing.T) {
	cfg = &config.Config{Output: config.OutputConfig{Formats: []string{"parquet"}}}

	_, _, err := openSink(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestAbandonStaleRuns(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.RunParams{SquareSize: 0.01})
	require.NoError(t, err)

	cfg = &config.Config{Store: config.StoreConfig{StaleAfterHours: 0}}
	abandonStaleRuns(ctx, st)
	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status, "disabled check leaves runs alone")

	cfg = &config.Config{Store: config.StoreConfig{StaleAfterHours: 1}}
	abandonStaleRuns(ctx, st)
	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status, "a fresh run is not stale")
}
