package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/db"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// KeyColumn is the mesh cell key.
const KeyColumn = "index_mesh"

// PostgresSink loads tables with COPY into an optional schema.
type PostgresSink struct {
	pool   db.Pool
	schema string
	keys   map[string]string
}

// NewPostgres creates a sink over pool. schema may be empty.
func NewPostgres(pool db.Pool, schema string) *PostgresSink {
	return &PostgresSink{pool: pool, schema: schema, keys: map[string]string{}}
}

// WithKey makes writes of table name upsert on col instead of replacing
// the table's contents.
func (s *PostgresSink) WithKey(name, col string) *PostgresSink {
	s.keys[name] = col
	return s
}

var postgresTypes = map[Kind]string{
	KindNull:     "TEXT",
	KindBool:     "BOOLEAN",
	KindInt:      "BIGINT",
	KindFloat:    "DOUBLE PRECISION",
	KindText:     "TEXT",
	KindGeometry: "BYTEA",
}

func (s *PostgresSink) qualified(name string) string {
	if s.schema == "" {
		return name
	}
	return s.schema + "." + name
}

// Write creates the table if absent. Keyed tables are upserted and pruned so
// a rebuilt mesh replaces cells in place; all others are truncated and
// reloaded with COPY in one transaction. Geometries are stored as EWKB.
func (s *PostgresSink) Write(ctx context.Context, name string, t *table.Table) (int64, error) {
	cols := t.Columns()
	if len(cols) == 0 {
		return 0, eris.Errorf("sink: table %s has no columns", name)
	}
	kinds := ColumnKinds(t)
	rows, err := Rows(t, kinds)
	if err != nil {
		return 0, err
	}

	defs := make([]db.Column, len(cols))
	for i, c := range cols {
		defs[i] = db.Column{Name: c, Type: postgresTypes[kinds[i]]}
	}
	target := s.qualified(name)

	if key, ok := s.keys[name]; ok && t.Has(key) {
		if err := db.CreateTable(ctx, s.pool, target, defs, key); err != nil {
			return 0, eris.Wrap(err, "sink: postgres")
		}
		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        target,
			Columns:      cols,
			ConflictKeys: []string{key},
			Prune:        true,
		}, rows)
		if err != nil {
			return 0, eris.Wrap(err, "sink: postgres")
		}
		zap.L().Info("upserted postgres table", zap.String("table", target), zap.Int64("rows", n))
		return n, nil
	}

	if err := db.CreateTable(ctx, s.pool, target, defs); err != nil {
		return 0, eris.Wrap(err, "sink: postgres")
	}
	n, err := db.ReplaceAll(ctx, s.pool, target, cols, rows)
	if err != nil {
		return 0, eris.Wrap(err, "sink: postgres")
	}
	zap.L().Info("copied postgres table", zap.String("table", target), zap.Int64("rows", n))
	return n, nil
}
