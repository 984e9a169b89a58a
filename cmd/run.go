package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/catalog"
	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/mesh"
	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/monitoring"
	"github.com/sells-group/firerisk-cli/internal/pipeline"
	"github.com/sells-group/firerisk-cli/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline over the catalog datasets",
	Long:  "Loads the raw datasets from the catalog, runs data processing and feature engineering, and writes the terminal datasets to every configured output.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stage, _ := cmd.Flags().GetString("stage")
		until, _ := cmd.Flags().GetString("until")
		withMesh, _ := cmd.Flags().GetBool("with-mesh")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := runPipeline(ctx, stage, until, withMesh)
		if err != nil {
			return err
		}
		formatRunResult(os.Stdout, res)
		return nil
	},
}

func init() {
	runCmd.Flags().String("stage", "", "run only data_processing or feature_engineering")
	runCmd.Flags().String("until", "", "stop after the named node and write its output")
	runCmd.Flags().Bool("with-mesh", false, "also write the square mesh with its index_mesh key")
	rootCmd.AddCommand(runCmd)
}

// pipelineParams maps the config onto the stage parameters.
func pipelineParams() (pipeline.Params, error) {
	proj, err := geo.NewUTM(cfg.Params.UTMZone, false)
	if err != nil {
		return pipeline.Params{}, err
	}
	p := pipeline.DefaultParams(proj)
	p.SquareSize = cfg.Params.SquareSize
	if len(cfg.Params.FireCategories) > 0 {
		p.Features.FireCategories = cfg.Params.FireCategories
	}
	return p, nil
}

func stageNames(stage string) []string {
	if stage == "" || stage == "__default__" {
		return []string{pipeline.StageDataProcessing, pipeline.StageFeatureEngineering}
	}
	return []string{stage}
}

func runPipeline(ctx context.Context, stage, until string, withMesh bool) (*pipeline.Result, error) {
	params, err := pipelineParams()
	if err != nil {
		return nil, err
	}
	p, ok := pipeline.ByName(stage, params)
	if !ok {
		return nil, eris.Errorf("unknown stage %q", stage)
	}
	nodes, err := p.Order()
	if err != nil {
		return nil, err
	}
	if nodes, err = pipeline.Until(nodes, until); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	inputs, err := cat.LoadAll(ctx, pipeline.RawInputs(nodes)...)
	if err != nil {
		return nil, eris.Wrap(err, "load datasets")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck
	abandonStaleRuns(ctx, st)

	out, closeSink, err := openSink(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	metrics := monitoring.NewMetrics()
	opts := pipeline.Options{
		Until: until,
		Params: model.RunParams{
			Stages:     stageNames(stage),
			Until:      until,
			SquareSize: cfg.Params.SquareSize,
			UTMZone:    cfg.Params.UTMZone,
			Catalog:    cfg.Catalog.Path,
		},
	}
	if withMesh {
		opts.Keep = []string{pipeline.DatasetSquareMesh}
	}

	res, runErr := pipeline.NewRunner(st, metrics, out, nil).Run(ctx, p, inputs, opts)
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		zap.L().Warn("run: failed to write metrics", zap.Error(err))
	}
	if runErr != nil {
		return res, runErr
	}

	if cells, ok := res.Outputs[pipeline.DatasetSquareMesh]; ok && withMesh {
		if _, err := out.Write(ctx, pipeline.DatasetSquareMesh, mesh.Indexed(cells)); err != nil {
			return res, eris.Wrap(err, "write mesh")
		}
	}
	return res, nil
}

// abandonStaleRuns fails runs an earlier crashed process left running.
func abandonStaleRuns(ctx context.Context, st store.Store) {
	if cfg.Store.StaleAfterHours <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(cfg.Store.StaleAfterHours) * time.Hour)
	n, err := st.AbandonStaleRuns(ctx, cutoff)
	if err != nil {
		zap.L().Warn("run: failed to abandon stale runs", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("run: abandoned stale runs", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
}

// formatRunResult writes a per-step summary of a run to w.
func formatRunResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintln(w, "STEP\tSTATUS\tROWS_IN\tROWS_OUT\tDURATION_MS")
	for _, s := range res.Run.Steps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.Name, s.Status, s.RowsIn, s.RowsOut, s.DurationMS)
	}
	for _, name := range res.Run.Outputs {
		if t, ok := res.Outputs[name]; ok {
			_, _ = fmt.Fprintf(w, "Output %s:\t%d rows\n", name, t.Len())
		}
	}
	_ = w.Flush()
}
