// Package source reads raw dataset files into typed tables.
package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// Format names a supported file layout.
type Format string

// Supported formats.
const (
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
)

// Options tune how a file is decoded. Zero values mean UTF-8, comma
// delimited, first sheet.
type Options struct {
	Encoding  string
	Delimiter rune
	Sheet     string
	SkipRows  int
}

// FormatOf guesses the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp":
		return FormatShapefile, nil
	}
	return "", eris.Errorf("source: unknown format for %s", path)
}

// Read loads path in the given format.
func Read(ctx context.Context, path string, format Format, opts Options) (*table.Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(ctx, path, opts)
	case FormatXLSX:
		return ReadXLSX(path, opts)
	case FormatGeoJSON:
		return ReadGeoJSON(path)
	case FormatShapefile:
		return ReadShapefile(path, opts)
	}
	return nil, eris.Errorf("source: unsupported format %q", format)
}
