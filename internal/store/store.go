// Package store persists pipeline run history: one row per run and one per
// executed node.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Since  time.Time       `json:"since,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, result *model.RunResult, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// AbandonStaleRuns fails runs still marked running that have not been
	// updated since before. A crashed process leaves such rows behind.
	AbandonStaleRuns(ctx context.Context, before time.Time) (int64, error)
	// PruneRuns deletes finished runs created before the cutoff, along with
	// their steps.
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	CreateStep(ctx context.Context, runID string, name string) (*model.RunStep, error)
	CompleteStep(ctx context.Context, stepID string, result *model.StepResult) error
	ListSteps(ctx context.Context, runID string) ([]model.RunStep, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// AbandonedMessage is the error recorded on runs failed by AbandonStaleRuns.
const AbandonedMessage = "abandoned: process exited without finishing the run"

const runColumns = `id, params, status, result, error, created_at, updated_at`

// listRunsQuery renders the ListRuns query for a backend whose n-th bind
// parameter is written ph(n).
func listRunsQuery(filter RunFilter, ph func(n int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}
	if filter.Status != "" {
		where = append(where, "status = "+bind(string(filter.Status)))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= "+bind(filter.Since.UTC()))
	}

	var b strings.Builder
	b.WriteString("SELECT " + runColumns + " FROM runs")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	b.WriteString(" LIMIT " + bind(limit))
	if filter.Offset > 0 {
		b.WriteString(" OFFSET " + bind(filter.Offset))
	}
	return b.String(), args
}

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// encodeResult marshals a run result, nil staying nil.
func encodeResult(result *model.RunResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	return b, eris.Wrap(err, "store: marshal result")
}

// decodeRun fills the JSON columns shared by both backends.
func decodeRun(r *model.Run, params, result []byte, errMsg string) (*model.Run, error) {
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal params")
	}
	if result != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal result")
		}
	}
	r.Error = errMsg
	return r, nil
}

func decodeStepResult(st *model.RunStep, raw []byte) error {
	if raw == nil {
		return nil
	}
	st.Result = &model.StepResult{}
	return eris.Wrap(json.Unmarshal(raw, st.Result), "store: unmarshal step result")
}

func newRun(id string, params model.RunParams, now time.Time) *model.Run {
	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newStep(id, runID, name string, now time.Time) *model.RunStep {
	return &model.RunStep{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StepStatusRunning,
		StartedAt: now,
	}
}
