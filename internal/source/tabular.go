package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/fetcher"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// ReadCSV loads a delimited text file. The first row names the columns and
// each column's type is inferred from its cells.
func ReadCSV(ctx context.Context, path string, opts Options) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
		Delimiter: opts.Delimiter,
		Encoding:  opts.Encoding,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	if header == nil {
		return nil, eris.Errorf("source: %s has no header row", path)
	}
	return table.FromRecords(header, rows), nil
}

// ReadXLSX loads one worksheet with its first row as header.
func ReadXLSX(path string, opts Options) (*table.Table, error) {
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{
		Sheet:    opts.Sheet,
		SkipRows: opts.SkipRows,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	if header == nil {
		return nil, eris.Errorf("source: %s has no header row", path)
	}
	return table.FromRecords(header, rows), nil
}
