package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/db"
	"github.com/sells-group/firerisk-cli/internal/model"
)

// PostgresStore implements Store on a shared Postgres database, keeping run
// history next to the sink tables.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a small pool tagged with the application name.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	cfg := db.PoolConfig{AppName: "firerisk-runs"}
	if poolCfg != nil {
		cfg = *poolCfg
	}
	pool, err := db.Connect(ctx, connString, &cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; Close leaves it open.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	params     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_steps (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	result      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_running ON runs(updated_at) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}
	run := newRun(uuid.New().String(), params, time.Now().UTC())
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, paramsJSON, string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, result *model.RunResult, msg string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, result, msg)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, msg string) error {
	resultJSON, err := encodeResult(result)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, error = NULLIF($2, ''), status = $3, updated_at = $4 WHERE id = $5`,
		resultJSON, msg, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := listRunsQuery(filter, postgresPlaceholder)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AbandonStaleRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = now() WHERE status = $3 AND updated_at < $4`,
		string(model.RunStatusFailed), AbandonedMessage, string(model.RunStatusRunning), before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: abandon stale runs")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM runs WHERE status <> $1 AND created_at < $2`,
		string(model.RunStatusRunning), before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune runs")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateStep(ctx context.Context, runID string, name string) (*model.RunStep, error) {
	step := newStep(uuid.New().String(), runID, name, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_steps (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		step.ID, runID, name, string(step.Status), step.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert step for run %s", runID)
	}
	return step, nil
}

func (s *PostgresStore) CompleteStep(ctx context.Context, stepID string, result *model.StepResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal step result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_steps SET status = $1, result = $2, finished_at = $3 WHERE id = $4`,
		string(result.Status), resultJSON, time.Now().UTC(), stepID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete step %s", stepID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("step not found: %s", stepID)
	}
	return nil
}

func (s *PostgresStore) ListSteps(ctx context.Context, runID string) ([]model.RunStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, result, started_at, finished_at
		 FROM run_steps WHERE run_id = $1 ORDER BY started_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list steps for run %s", runID)
	}
	defer rows.Close()

	var steps []model.RunStep
	for rows.Next() {
		var st model.RunStep
		var resultJSON []byte
		if err := rows.Scan(&st.ID, &st.RunID, &st.Name, &st.Status, &resultJSON, &st.StartedAt, &st.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		if err := decodeStepResult(&st, resultJSON); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, eris.Wrap(rows.Err(), "postgres: list steps iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var (
		r          model.Run
		paramsJSON []byte
		resultJSON []byte
		errMsg     *string
	)
	if err := row.Scan(&r.ID, &paramsJSON, &r.Status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	return decodeRun(&r, paramsJSON, resultJSON, msg)
}
