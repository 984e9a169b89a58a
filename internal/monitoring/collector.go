// Package monitoring exports per-run Prometheus metrics and evaluates run
// history against alert thresholds.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// LastSuccessAt is zero when no run in the window completed.
	LastSuccessAt  time.Time `json:"last_success_at"`
	LastOutputRows int       `json:"last_output_rows"`
	// PrevOutputRows is the output of the successful run before the last.
	PrevOutputRows int     `json:"prev_output_rows"`
	AvgDurationSec float64 `json:"avg_duration_sec"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from run history.
type Collector struct {
	runs  RunLister
	clock clockwork.Clock
}

// NewCollector creates a new metrics collector. A nil clock uses wall time.
func NewCollector(runs RunLister, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.clock.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDur time.Duration
	var timed int
	var successes []model.Run
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			successes = append(successes, r)
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result != nil && len(r.Result.Steps) > 0 {
			totalDur += r.Result.Duration()
			timed++
		}
	}

	sort.SliceStable(successes, func(i, j int) bool {
		return successes[i].UpdatedAt.After(successes[j].UpdatedAt)
	})
	if len(successes) > 0 {
		snap.LastSuccessAt = successes[0].UpdatedAt
		snap.LastOutputRows = outputRows(successes[0])
	}
	if len(successes) > 1 {
		snap.PrevOutputRows = outputRows(successes[1])
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if timed > 0 {
		snap.AvgDurationSec = totalDur.Seconds() / float64(timed)
	}
	return snap, nil
}

func outputRows(r model.Run) int {
	if r.Result == nil {
		return 0
	}
	return r.Result.OutputRows
}
