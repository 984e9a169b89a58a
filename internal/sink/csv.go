package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// CSVSink writes each table to <Dir>/<name>.csv with a header row. Nulls are
// empty fields and floats use the shortest round-trip form.
type CSVSink struct {
	Dir string
}

// Write implements Sink.
func (s CSVSink) Write(ctx context.Context, name string, t *table.Table) (int64, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "sink: create %s", s.Dir)
	}
	path := filepath.Join(s.Dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "sink: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	cols := t.Columns()
	if err := w.Write(cols); err != nil {
		return 0, eris.Wrapf(err, "sink: write %s", path)
	}
	rec := make([]string, len(cols))
	for i := 0; i < t.Len(); i++ {
		if i%10000 == 0 && ctx.Err() != nil {
			return int64(i), eris.Wrap(ctx.Err(), "sink: csv cancelled")
		}
		for j, c := range cols {
			rec[j] = cellText(t.Value(i, c))
		}
		if err := w.Write(rec); err != nil {
			return int64(i), eris.Wrapf(err, "sink: write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, eris.Wrapf(err, "sink: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return 0, eris.Wrapf(err, "sink: close %s", path)
	}

	zap.L().Info("wrote csv", zap.String("path", path), zap.Int("rows", t.Len()))
	return int64(t.Len()), nil
}
