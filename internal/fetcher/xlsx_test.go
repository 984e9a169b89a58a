package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type sheetSpec struct {
	name string
	rows [][]string
}

func createTestXLSX(t *testing.T, sheets ...sheetSpec) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_HeaderAndRows(t *testing.T) {
	path := createTestXLSX(t, sheetSpec{"uef", [][]string{
		{" ID_UEV ", "ANNEE_CONSTRUCTION"},
		{"1001", "1952"},
		{"1002"},
		{"", ""},
	}})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID_UEV", "ANNEE_CONSTRUCTION"}, header)
	assert.Equal(t, [][]string{{"1001", "1952"}, {"1002", ""}}, rows)
}

func TestReadXLSX_NumericCellsKeepStoredValue(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("census")
	require.NoError(t, err)
	hdr := sheet.AddRow()
	hdr.AddCell().SetString("DGUID")
	hdr.AddCell().SetString("POP")
	row := sheet.AddRow()
	row.AddCell().SetString("2021S0507")
	row.AddCell().SetInt(3500)
	path := filepath.Join(t.TempDir(), "census.xlsx")
	require.NoError(t, f.Save(path))

	_, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2021S0507", "3500"}}, rows)
}

func TestReadXLSX_BlankHeaderCells(t *testing.T) {
	path := createTestXLSX(t, sheetSpec{"s", [][]string{
		{"a", "", "c", ""},
		{"1", "2", "3", ""},
	}})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "column_2", "c"}, header)
	assert.Equal(t, [][]string{{"1", "2", "3"}}, rows)
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, sheetSpec{"Sheet1", [][]string{
		{"Census 2021 profile"},
		{"CTUID", "POP"},
		{"4620001.00", "3500"},
	}})

	header, rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"CTUID", "POP"}, header)
	require.Len(t, rows, 1)
}

func TestReadXLSX_FirstNonEmptySheet(t *testing.T) {
	path := createTestXLSX(t,
		sheetSpec{"notes", nil},
		sheetSpec{"data", [][]string{{"a"}, {"1"}}},
	)

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, header)
	assert.Equal(t, [][]string{{"1"}}, rows)
}

func TestReadXLSX_NamedSheet(t *testing.T) {
	path := createTestXLSX(t,
		sheetSpec{"first", [][]string{{"x"}, {"9"}}},
		sheetSpec{"Data", [][]string{{"a"}, {"1"}}},
	)

	header, _, err := ReadXLSX(path, XLSXOptions{Sheet: "Data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, header)

	_, _, err = ReadXLSX(path, XLSXOptions{Sheet: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, writeTestFile(path, "not a workbook"))

	_, _, err := ReadXLSX(path, XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}
