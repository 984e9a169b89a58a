package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/monitoring"
	"github.com/sells-group/firerisk-cli/internal/sink"
	"github.com/sells-group/firerisk-cli/internal/store"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Runner executes pipelines, recording each node in the run history and the
// metrics registry. Store, metrics and sink are all optional.
type Runner struct {
	store   store.Store
	metrics *monitoring.Metrics
	sink    sink.Sink
	clock   clockwork.Clock
}

// NewRunner creates a Runner. A nil clock means the wall clock.
func NewRunner(st store.Store, m *monitoring.Metrics, out sink.Sink, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{store: st, metrics: m, sink: out, clock: clock}
}

// Options controls a single run.
type Options struct {
	// Until stops the run after the named node; its output becomes terminal.
	Until string
	// Keep lists intermediate datasets to retain in Result.Outputs.
	Keep   []string
	Params model.RunParams
}

// Result is what a run produced.
type Result struct {
	RunID   string
	Outputs map[string]*table.Table
	Run     *model.RunResult
}

// Run executes p over the raw inputs. Intermediate tables are released as
// soon as their last consumer finishes; the terminal outputs are written to
// the sink and returned.
func (r *Runner) Run(ctx context.Context, p Pipeline, inputs map[string]*table.Table, opts Options) (*Result, error) {
	nodes, err := p.Order()
	if err != nil {
		return nil, err
	}
	if nodes, err = Until(nodes, opts.Until); err != nil {
		return nil, err
	}
	for _, name := range RawInputs(nodes) {
		if inputs[name] == nil {
			return nil, eris.Errorf("pipeline: missing input %q", name)
		}
	}

	log := zap.L().With(zap.String("pipeline", p.Name))
	log.Info("pipeline: starting run", zap.Int("nodes", len(nodes)), zap.String("until", opts.Until))

	res := &Result{Outputs: map[string]*table.Table{}, Run: &model.RunResult{}}
	if r.store != nil {
		run, createErr := r.store.CreateRun(ctx, opts.Params)
		if createErr != nil {
			return nil, eris.Wrap(createErr, "pipeline: create run")
		}
		res.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	datasets := make(map[string]*table.Table, len(inputs))
	for name, t := range inputs {
		datasets[name] = t
	}
	for _, name := range RawInputs(nodes) {
		res.Run.InputRows += inputs[name].Len()
	}

	keep := map[string]bool{}
	for _, name := range opts.Keep {
		keep[name] = true
	}
	terminal := Terminal(nodes)
	for _, name := range terminal {
		keep[name] = true
	}
	last := lastUse(nodes)

	trackStep := func(n Node) (*model.StepResult, error) {
		step, stepErr := r.createStep(ctx, res.RunID, n.Name)
		if stepErr != nil {
			log.Warn("pipeline: failed to create step", zap.String("step", n.Name), zap.Error(stepErr))
		}

		in := make([]*table.Table, len(n.Inputs))
		rowsIn := 0
		for i, name := range n.Inputs {
			in[i] = datasets[name]
			rowsIn += in[i].Len()
		}

		start := r.clock.Now()
		out, fnErr := n.Func(ctx, in)
		if fnErr == nil && out == nil {
			fnErr = eris.Errorf("node %s returned no table", n.Name)
		}
		duration := r.clock.Since(start)

		sr := &model.StepResult{Name: n.Name, DurationMS: duration.Milliseconds(), RowsIn: rowsIn}
		if fnErr != nil {
			sr.Status = model.StepStatusFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: step failed",
				zap.String("step", n.Name),
				zap.Int64("duration_ms", sr.DurationMS),
				zap.Error(fnErr),
			)
		} else {
			sr.Status = model.StepStatusComplete
			sr.RowsOut = out.Len()
			datasets[n.Output] = out
			log.Info("pipeline: step complete",
				zap.String("step", n.Name),
				zap.Int64("duration_ms", sr.DurationMS),
				zap.Int("rows_in", sr.RowsIn),
				zap.Int("rows_out", sr.RowsOut),
			)
		}

		if step != nil {
			if completeErr := r.store.CompleteStep(ctx, step.ID, sr); completeErr != nil {
				log.Warn("pipeline: failed to complete step", zap.String("step", n.Name), zap.Error(completeErr))
			}
		}
		r.observeStep(n, sr, duration, fnErr, out)
		res.Run.Steps = append(res.Run.Steps, *sr)
		return sr, fnErr
	}

	started := r.clock.Now()
	var runErr error
	for i, n := range nodes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = eris.Wrap(ctxErr, "pipeline: cancelled")
			skipRemaining(res.Run, nodes[i:])
			break
		}
		if _, err := trackStep(n); err != nil {
			runErr = eris.Wrapf(err, "pipeline: node %s", n.Name)
			skipRemaining(res.Run, nodes[i+1:])
			break
		}
		for _, name := range n.Inputs {
			if last[name] == i && !keep[name] {
				delete(datasets, name)
			}
		}
	}

	if runErr == nil {
		runErr = r.writeOutputs(ctx, log, terminal, datasets, res)
	}
	for name := range keep {
		if t, ok := datasets[name]; ok {
			res.Outputs[name] = t
		}
	}
	if t, ok := res.Outputs[DatasetSquareMesh]; ok {
		res.Run.MeshCells = t.Len()
	}

	elapsed := r.clock.Since(started)
	if runErr != nil {
		r.finish(ctx, log, res, false, elapsed, runErr)
		return res, runErr
	}
	r.finish(ctx, log, res, true, elapsed, nil)
	return res, nil
}

func (r *Runner) createStep(ctx context.Context, runID, name string) (*model.RunStep, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.CreateStep(ctx, runID, name)
}

func (r *Runner) observeStep(n Node, sr *model.StepResult, d time.Duration, err error, out *table.Table) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveStep(n.Name, d, sr.RowsIn, sr.RowsOut, err)
	if err != nil || out == nil {
		return
	}
	switch n.Output {
	case DatasetSquareMesh:
		r.metrics.MeshCells.Set(float64(out.Len()))
	case DatasetInputTable:
		r.metrics.OutputRows.Set(float64(out.Len()))
	}
}

func (r *Runner) writeOutputs(ctx context.Context, log *zap.Logger, names []string, datasets map[string]*table.Table, res *Result) error {
	for _, name := range names {
		t := datasets[name]
		res.Run.Outputs = append(res.Run.Outputs, name)
		res.Run.OutputRows += t.Len()
		if r.sink == nil {
			continue
		}
		n, err := r.sink.Write(ctx, name, t)
		if err != nil {
			return eris.Wrapf(err, "pipeline: write %s", name)
		}
		log.Info("pipeline: output written", zap.String("dataset", name), zap.Int64("rows", n))
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, res *Result, ok bool, elapsed time.Duration, runErr error) {
	if r.metrics != nil {
		r.metrics.ObserveRun(ok, elapsed, r.clock.Now())
	}
	if r.store != nil {
		var err error
		if ok {
			err = r.store.CompleteRun(ctx, res.RunID, res.Run)
		} else {
			err = r.store.FailRun(ctx, res.RunID, res.Run, runErr.Error())
		}
		if err != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(err))
		}
	}
	if !ok {
		log.Error("pipeline: run failed", zap.Duration("elapsed", elapsed), zap.Error(runErr))
		return
	}
	log.Info("pipeline: run complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("input_rows", res.Run.InputRows),
		zap.Int("output_rows", res.Run.OutputRows),
		zap.Strings("outputs", res.Run.Outputs),
	)
}

func skipRemaining(rr *model.RunResult, nodes []Node) {
	for _, n := range nodes {
		rr.Steps = append(rr.Steps, model.StepResult{Name: n.Name, Status: model.StepStatusSkipped})
	}
}
