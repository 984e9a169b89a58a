package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/firerisk-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check run history against alert thresholds",
	Long:  "Evaluates the failure rate, output staleness and empty outputs over the lookback window and posts alerts to monitoring.webhook_url. Runs on monitoring.check_interval_secs until interrupted unless --once is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		once, _ := cmd.Flags().GetBool("once")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, nil),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
			nil,
		)

		if !once {
			checker.Run(ctx)
			return nil
		}

		alerts := checker.Check(ctx)
		if alerts == nil {
			alerts = []monitoring.Alert{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	},
}

func init() {
	monitorCmd.Flags().Bool("once", false, "check once and print the triggered alerts")
	rootCmd.AddCommand(monitorCmd)
}
