package config

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Params     ParamsConfig     `yaml:"params" mapstructure:"params"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// StaleAfterHours fails runs left running longer than this before a new
	// run starts. Zero disables the check.
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	RetentionDays   int `yaml:"retention_days" mapstructure:"retention_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CatalogConfig locates the dataset catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ParamsConfig holds the feature-engineering parameters.
type ParamsConfig struct {
	// SquareSize is the mesh cell edge in degrees.
	SquareSize     float64  `yaml:"square_size" mapstructure:"square_size"`
	UTMZone        int      `yaml:"utm_zone" mapstructure:"utm_zone"`
	FireCategories []string `yaml:"fire_categories" mapstructure:"fire_categories"`
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	Dir         string   `yaml:"dir" mapstructure:"dir"`
	Formats     []string `yaml:"formats" mapstructure:"formats"` // csv, sqlite, postgres, geojson
	SQLitePath  string   `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string   `yaml:"database_url" mapstructure:"database_url"`
	Table       string   `yaml:"table" mapstructure:"table"`
	MeshTable   string   `yaml:"mesh_table" mapstructure:"mesh_table"`
}

// FetchConfig configures raw dataset downloads.
type FetchConfig struct {
	TempDir     string         `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int            `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Sources     []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// SourceConfig is one downloadable raw file.
type SourceConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
	// Dest is the path under the catalog directory; for ZIP archives, the
	// directory the archive is extracted into.
	Dest    string `yaml:"dest" mapstructure:"dest"`
	Extract bool   `yaml:"extract" mapstructure:"extract"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MonitoringConfig configures run-history alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	OutputDropThreshold  float64 `yaml:"output_drop_threshold" mapstructure:"output_drop_threshold"`
	RepeatAfterHours     int     `yaml:"repeat_after_hours" mapstructure:"repeat_after_hours"`
}

// Load reads configuration from ./config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from ./config.yaml when path is
// empty, layered under FIRERISK_* environment variables.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FIRERISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "firerisk-runs.db")
	v.SetDefault("store.stale_after_hours", 6)
	v.SetDefault("store.retention_days", 90)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("catalog.path", "conf/catalog.yaml")
	v.SetDefault("params.square_size", 0.01)
	v.SetDefault("params.utm_zone", 13)
	v.SetDefault("params.fire_categories", []string{"Autres incendies", "Incendies de bâtiments"})
	v.SetDefault("output.dir", "data/model_input")
	v.SetDefault("output.formats", []string{"csv"})
	v.SetDefault("output.sqlite_path", "data/model_input/firerisk.db")
	v.SetDefault("output.table", "input_table")
	v.SetDefault("output.mesh_table", "square_mesh")
	v.SetDefault("fetch.temp_dir", "/tmp/firerisk")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 168)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.output_drop_threshold", 0.5)
	v.SetDefault("monitoring.repeat_after_hours", 24)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validFormats = map[string]bool{"csv": true, "sqlite": true, "postgres": true, "geojson": true}

// Validate rejects parameter values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Params.SquareSize <= 0 {
		return eris.Errorf("config: params.square_size must be positive, got %v", c.Params.SquareSize)
	}
	if c.Params.UTMZone < 1 || c.Params.UTMZone > 60 {
		return eris.Errorf("config: params.utm_zone must be in 1..60, got %d", c.Params.UTMZone)
	}
	for _, f := range c.Output.Formats {
		if !validFormats[f] {
			return eris.Errorf("config: unknown output format %q", f)
		}
		if f == "postgres" && c.Output.DatabaseURL == "" {
			return eris.New("config: output.database_url is required for the postgres format")
		}
	}
	switch c.Store.Driver {
	case "sqlite", "":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
