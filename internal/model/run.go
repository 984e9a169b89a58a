// Package model holds the run-history types shared by the pipeline, the store
// and monitoring.
package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records what a run was asked to do.
type RunParams struct {
	Stages     []string `json:"stages"`
	Until      string   `json:"until,omitempty"`
	SquareSize float64  `json:"square_size"`
	UTMZone    int      `json:"utm_zone"`
	Catalog    string   `json:"catalog,omitempty"`
}

// Run is one invocation of the pipeline.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	InputRows  int          `json:"input_rows"`
	OutputRows int          `json:"output_rows"`
	MeshCells  int          `json:"mesh_cells"`
	Steps      []StepResult `json:"steps"`
	Outputs    []string     `json:"outputs,omitempty"`
}

// Duration is the summed duration of all steps.
func (r *RunResult) Duration() time.Duration {
	var ms int64
	for _, s := range r.Steps {
		ms += s.DurationMS
	}
	return time.Duration(ms) * time.Millisecond
}

// StepStatus represents the state of one pipeline node within a run.
type StepStatus string

const (
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusFailed   StepStatus = "failed"
	StepStatusSkipped  StepStatus = "skipped"
)

// RunStep is a pipeline node execution recorded against a run.
type RunStep struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Name       string      `json:"name"`
	Status     StepStatus  `json:"status"`
	Result     *StepResult `json:"result,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// StepResult holds the outcome of a pipeline node.
type StepResult struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	RowsIn     int        `json:"rows_in"`
	RowsOut    int        `json:"rows_out"`
	Error      string     `json:"error,omitempty"`
}
