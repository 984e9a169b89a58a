package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg *config.Config

	configPath  string
	catalogPath string
	outputDir   string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:     "firerisk",
	Version: version,
	Short:   "Fire-incident risk input table builder",
	Long: "Cleans Montreal fire incident, station, property assessment and census open data, " +
		"assigns every record to a square mesh clipped to the fire-station service areas, " +
		"and writes the model input table.",
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// loadRuntime reads the config file, applies command-line overrides and
// installs the global logger.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadFile(configPath)
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	applyOverrides(cmd, c)
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("catalog", cfg.Catalog.Path),
		zap.String("output_dir", cfg.Output.Dir),
		zap.String("version", version),
	)
	return nil
}

// applyOverrides copies root flags the user set explicitly onto c.
func applyOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("catalog") {
		c.Catalog.Path = catalogPath
	}
	if flags.Changed("output-dir") {
		c.Output.Dir = outputDir
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&catalogPath, "catalog", "", "dataset catalog file, overrides catalog.path")
	pf.StringVar(&outputDir, "output-dir", "", "directory for written outputs, overrides output.dir")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error; overrides log.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
