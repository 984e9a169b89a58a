package fetcher

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read.
type XLSXOptions struct {
	Sheet    string // empty means the first sheet that has any rows
	SkipRows int    // title rows above the header
}

// ReadXLSX returns the header and data rows of one worksheet, shaped like
// ReadCSV output. Header cells are trimmed and blank ones named column_N.
// Numeric cells keep their stored value rather than the display format, and
// rows with no content are dropped.
func ReadXLSX(path string, opts XLSXOptions) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, nil, err
	}
	if sheet == nil || len(sheet.Rows) <= opts.SkipRows {
		return nil, nil, nil
	}

	header := headerCells(sheet.Rows[opts.SkipRows])
	var rows [][]string
	for _, row := range sheet.Rows[opts.SkipRows+1:] {
		if row == nil {
			continue
		}
		rec := make([]string, len(header))
		empty := true
		for j, cell := range row.Cells {
			if j >= len(rec) {
				break
			}
			rec[j] = cellText(cell)
			if rec[j] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, rec)
		}
	}
	return header, rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	for _, sheet := range f.Sheets {
		if len(sheet.Rows) > 0 {
			return sheet, nil
		}
	}
	return nil, nil
}

func headerCells(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cols := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cols[j] = cell.String()
	}
	return normalizeHeader(cols)
}

// normalizeHeader trims column names, names blank ones column_N and drops
// trailing unnamed columns, which are formatting residue.
func normalizeHeader(raw []string) []string {
	cols := make([]string, len(raw))
	for j, name := range raw {
		cols[j] = strings.TrimSpace(name)
		if cols[j] == "" {
			cols[j] = fmt.Sprintf("column_%d", j+1)
		}
	}
	for len(cols) > 0 && strings.TrimSpace(raw[len(cols)-1]) == "" {
		cols = cols[:len(cols)-1]
	}
	return cols
}

func cellText(cell *xlsx.Cell) string {
	if cell == nil {
		return ""
	}
	if cell.Type() == xlsx.CellTypeNumeric {
		return strings.TrimSpace(cell.Value)
	}
	return strings.TrimSpace(cell.String())
}
