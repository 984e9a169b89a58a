package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// SQLiteSink replaces a table per output in a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sink: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sink: open sqlite")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sink: sqlite pragma")
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var sqliteAffinity = map[Kind]string{
	KindNull:     "TEXT",
	KindBool:     "INTEGER",
	KindInt:      "INTEGER",
	KindFloat:    "REAL",
	KindText:     "TEXT",
	KindGeometry: "BLOB",
}

// Write drops and recreates table name, then inserts every row in one
// transaction.
func (s *SQLiteSink) Write(ctx context.Context, name string, t *table.Table) (int64, error) {
	cols := t.Columns()
	if len(cols) == 0 {
		return 0, eris.Errorf("sink: table %s has no columns", name)
	}
	kinds := ColumnKinds(t)
	rows, err := Rows(t, kinds)
	if err != nil {
		return 0, err
	}

	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		defs[i] = fmt.Sprintf("%s %s", quoted[i], sqliteAffinity[kinds[i]])
		marks[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sink: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return 0, eris.Wrapf(err, "sink: drop %s", name)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "sink: create %s", name)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "sink: prepare insert %s", name)
	}
	defer stmt.Close() //nolint:errcheck

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sink: insert %s row %d", name, i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sink: commit %s", name)
	}

	zap.L().Info("wrote sqlite table", zap.String("table", name), zap.Int("rows", len(rows)))
	return int64(len(rows)), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
