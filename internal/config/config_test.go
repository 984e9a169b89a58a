package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "firerisk-runs.db", cfg.Store.SQLitePath)
	assert.Equal(t, 6, cfg.Store.StaleAfterHours)
	assert.Equal(t, 90, cfg.Store.RetentionDays)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "conf/catalog.yaml", cfg.Catalog.Path)
	assert.InDelta(t, 0.01, cfg.Params.SquareSize, 1e-12)
	assert.Equal(t, 13, cfg.Params.UTMZone)
	assert.Equal(t, []string{"Autres incendies", "Incendies de bâtiments"}, cfg.Params.FireCategories)
	assert.Equal(t, []string{"csv"}, cfg.Output.Formats)
	assert.Equal(t, "input_table", cfg.Output.Table)
	assert.Equal(t, "square_mesh", cfg.Output.MeshTable)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.InDelta(t, 2.0, cfg.Fetch.RatePerSec, 1e-9)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Monitoring.OutputDropThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Monitoring.RepeatAfterHours)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
params:
  square_size: 0.005
  utm_zone: 18
output:
  formats: [csv, geojson]
fetch:
  sources:
    - name: incidents
      url: https://example.org/incidents.csv
      dest: raw/incidents/part-0.csv
    - name: census
      url: ftp://ftp.example.org/census.zip
      dest: raw/census
      extract: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.005, cfg.Params.SquareSize, 1e-12)
	assert.Equal(t, 18, cfg.Params.UTMZone)
	assert.Equal(t, []string{"csv", "geojson"}, cfg.Output.Formats)
	require.Len(t, cfg.Fetch.Sources, 2)
	assert.Equal(t, "incidents", cfg.Fetch.Sources[0].Name)
	assert.True(t, cfg.Fetch.Sources[1].Extract)
	// Defaults still apply for unset values
	assert.Equal(t, "input_table", cfg.Output.Table)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "alt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("params:\n  square_size: 0.02\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, cfg.Params.SquareSize, 1e-12)
}

func TestLoadFile_MissingExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	_, err := LoadFile(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
params:
  utm_zone: 18
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("FIRERISK_LOG_LEVEL", "warn")
	t.Setenv("FIRERISK_PARAMS_UTM_ZONE", "17")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 17, cfg.Params.UTMZone)
}

func TestLoad_InvalidParams(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FIRERISK_PARAMS_SQUARE_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "square_size must be positive")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Params.SquareSize = 0.01
	cfg.Params.UTMZone = 13
	cfg.Output.Formats = []string{"csv"}
	cfg.Store.Driver = "sqlite"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative square", func(c *Config) { c.Params.SquareSize = -1 }, "square_size"},
		{"zone zero", func(c *Config) { c.Params.UTMZone = 0 }, "utm_zone"},
		{"zone 61", func(c *Config) { c.Params.UTMZone = 61 }, "utm_zone"},
		{"unknown format", func(c *Config) { c.Output.Formats = []string{"parquet"} }, "unknown output format"},
		{"postgres output without url", func(c *Config) { c.Output.Formats = []string{"postgres"} }, "output.database_url"},
		{"postgres output with url", func(c *Config) {
			c.Output.Formats = []string{"postgres"}
			c.Output.DatabaseURL = "postgres://localhost/risk"
		}, ""},
		{"postgres store without url", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "unknown store driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
