package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and the nodes it executed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		steps, err := st.ListSteps(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*model.Run
				StepLog []model.RunStep `json:"step_log"`
			}{run, steps})
		}
		formatRunDetail(os.Stdout, run, steps)
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize runs and node timings over a window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished runs older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			olderThan = time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
		}
		if olderThan <= 0 {
			return eris.New("runs prune: no retention window; pass --older-than or set store.retention_days")
		}
		n, err := st.PruneRuns(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "runs prune")
		}
		fmt.Fprintf(os.Stdout, "Pruned %d runs older than %s.\n", n, olderThan)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsShowCmd.Flags().Bool("json", false, "print the run and its step log as JSON")
	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h)")

	runsPruneCmd.Flags().Duration("older-than", 0, "age cutoff (default store.retention_days)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd, runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}

// stepTiming is the mean duration of one node across completed runs.
type stepTiming struct {
	Name  string
	AvgMS float64
}

type runStats struct {
	Total       int
	Complete    int
	Failed      int
	Running     int
	AvgDurSecs  float64
	LastOutputs int
	LastMesh    int
	Slowest     []stepTiming // at most three, slowest first
}

// computeRunStats aggregates runs given newest first.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs)}

	var totalDur time.Duration
	seenComplete := false
	stepSum := map[string]int64{}
	stepN := map[string]int{}
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			if !seenComplete && r.Result != nil {
				s.LastOutputs = r.Result.OutputRows
				s.LastMesh = r.Result.MeshCells
				seenComplete = true
			}
			if r.Result == nil {
				continue
			}
			for _, st := range r.Result.Steps {
				if st.Status == model.StepStatusComplete {
					stepSum[st.Name] += st.DurationMS
					stepN[st.Name]++
				}
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if s.Complete > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Complete)
	}
	for name, sum := range stepSum {
		s.Slowest = append(s.Slowest, stepTiming{Name: name, AvgMS: float64(sum) / float64(stepN[name])})
	}
	sort.Slice(s.Slowest, func(i, j int) bool {
		if s.Slowest[i].AvgMS != s.Slowest[j].AvgMS {
			return s.Slowest[i].AvgMS > s.Slowest[j].AvgMS
		}
		return s.Slowest[i].Name < s.Slowest[j].Name
	})
	if len(s.Slowest) > 3 {
		s.Slowest = s.Slowest[:3]
	}
	return s
}

func stagesLabel(p model.RunParams) string {
	label := "all"
	if len(p.Stages) == 1 {
		label = p.Stages[0]
	}
	if p.Until != "" {
		label += " until " + p.Until
	}
	return label
}

func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGES\tSTATUS\tCELLS\tOUTPUT_ROWS\tCREATED\tDURATION")

	for _, r := range runs {
		cells, rows := "-", "-"
		if r.Result != nil && r.Status == model.RunStatusComplete {
			rows = fmt.Sprintf("%d", r.Result.OutputRows)
			if r.Result.MeshCells > 0 {
				cells = fmt.Sprintf("%d", r.Result.MeshCells)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			stagesLabel(r.Params),
			r.Status,
			cells,
			rows,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second),
		)
	}
	_ = w.Flush()
}

func formatRunDetail(out io.Writer, run *model.Run, steps []model.RunStep) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Stages:\t%s\n", stagesLabel(run.Params))
	_, _ = fmt.Fprintf(w, "Square size:\t%g\n", run.Params.SquareSize)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", run.CreatedAt.Format(time.RFC3339))
	if run.Result != nil {
		_, _ = fmt.Fprintf(w, "Rows:\t%d in, %d out\n", run.Result.InputRows, run.Result.OutputRows)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_ = w.Flush()

	if len(steps) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NODE\tSTATUS\tROWS_IN\tROWS_OUT\tDURATION\tERROR")
	for _, st := range steps {
		in, outRows, dur, msg := "-", "-", "-", ""
		if r := st.Result; r != nil {
			in = fmt.Sprintf("%d", r.RowsIn)
			outRows = fmt.Sprintf("%d", r.RowsOut)
			dur = (time.Duration(r.DurationMS) * time.Millisecond).String()
			msg = r.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", st.Name, st.Status, in, outRows, dur, msg)
	}
	_ = w.Flush()
}

func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Last output rows:\t%d\n", s.LastOutputs)
		_, _ = fmt.Fprintf(w, "Last mesh cells:\t%d\n", s.LastMesh)
	}
	for i, st := range s.Slowest {
		label := ""
		if i == 0 {
			label = "Slowest nodes:"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s (%.0fms)\n", label, st.Name, st.AvgMS)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
