// Package catalog maps dataset names to raw files on disk and loads them.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/firerisk-cli/internal/source"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Dataset types.
const (
	TypeCSV            = "csv"
	TypePartitionedCSV = "partitioned_csv"
	TypeXLSX           = "xlsx"
	TypeGeoJSON        = "geojson"
	TypeShapefile      = "shapefile"
)

// Raw dataset names the pipeline consumes.
const (
	Incidents           = "incidents"
	FireStations        = "firestations"
	FireStationAreas    = "firestation_areas"
	PropertyAssessments = "property_assessments"
	Census              = "census"
)

// DefaultNames lists the raw datasets in pipeline order.
var DefaultNames = []string{Incidents, FireStations, FireStationAreas, PropertyAssessments, Census}

// Dataset describes one named raw file or file set.
type Dataset struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path"` // a glob for partitioned_csv
	Encoding  string `yaml:"encoding,omitempty"`
	Delimiter string `yaml:"delimiter,omitempty"`
	Sheet     string `yaml:"sheet,omitempty"`
	SkipRows  int    `yaml:"skip_rows,omitempty"`
}

// Catalog is a parsed catalog file. Relative paths resolve against Root,
// which itself defaults to the catalog file's directory.
type Catalog struct {
	Root     string             `yaml:"root"`
	Datasets map[string]Dataset `yaml:"datasets"`
}

// Entry reports a dataset and the files it currently resolves to.
type Entry struct {
	Name  string
	Type  string
	Path  string
	Files []string
}

// Exists reports whether every file the dataset needs is present.
func (e Entry) Exists() bool { return len(e.Files) > 0 }

// Load parses and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	dir := filepath.Dir(path)
	switch {
	case c.Root == "":
		c.Root = dir
	case !filepath.IsAbs(c.Root):
		c.Root = filepath.Join(dir, c.Root)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks dataset types and options.
func (c *Catalog) Validate() error {
	for _, name := range c.Names() {
		ds := c.Datasets[name]
		switch ds.Type {
		case TypeCSV, TypePartitionedCSV, TypeXLSX, TypeGeoJSON, TypeShapefile:
		default:
			return eris.Errorf("catalog: dataset %s: unknown type %q", name, ds.Type)
		}
		if ds.Path == "" {
			return eris.Errorf("catalog: dataset %s: path is required", name)
		}
		if utf8.RuneCountInString(ds.Delimiter) > 1 {
			return eris.Errorf("catalog: dataset %s: delimiter must be one character", name)
		}
	}
	return nil
}

// Names returns the dataset names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Datasets))
	for n := range c.Datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the files behind a dataset. Partitioned datasets list their
// partitions in sorted order; a missing single file resolves to none.
func (c *Catalog) Resolve(name string) (Entry, error) {
	ds, ok := c.Datasets[name]
	if !ok {
		return Entry{}, eris.Errorf("catalog: unknown dataset %q", name)
	}
	e := Entry{Name: name, Type: ds.Type, Path: c.abs(ds.Path)}
	if ds.Type == TypePartitionedCSV {
		files, err := filepath.Glob(e.Path)
		if err != nil {
			return e, eris.Wrapf(err, "catalog: dataset %s: bad pattern", name)
		}
		sort.Strings(files)
		e.Files = files
		return e, nil
	}
	if info, err := os.Stat(e.Path); err == nil && !info.IsDir() {
		e.Files = []string{e.Path}
	}
	return e, nil
}

// Entries resolves every dataset.
func (c *Catalog) Entries() ([]Entry, error) {
	var out []Entry
	for _, n := range c.Names() {
		e, err := c.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Read loads one dataset. Partitions are read concurrently and concatenated
// in sorted key order.
func (c *Catalog) Read(ctx context.Context, name string) (*table.Table, error) {
	e, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !e.Exists() {
		return nil, eris.Errorf("catalog: dataset %s: no file at %s", name, e.Path)
	}
	ds := c.Datasets[name]
	format, opts := ds.source()

	parts := make([]*table.Table, len(e.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range e.Files {
		g.Go(func() error {
			t, err := source.Read(gctx, f, format, opts)
			if err != nil {
				return eris.Wrapf(err, "catalog: dataset %s", name)
			}
			parts[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := parts[0]
	if len(parts) > 1 {
		t = table.Union(parts...)
	}
	zap.L().Debug("catalog: loaded dataset",
		zap.String("dataset", name),
		zap.Int("files", len(parts)),
		zap.Int("rows", t.Len()),
	)
	return t, nil
}

// LoadAll reads the named datasets concurrently. With no names it reads
// every dataset in the catalog.
func (c *Catalog) LoadAll(ctx context.Context, names ...string) (map[string]*table.Table, error) {
	if len(names) == 0 {
		names = c.Names()
	}
	tables := make([]*table.Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range names {
		g.Go(func() error {
			t, err := c.Read(gctx, n)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*table.Table, len(names))
	for i, n := range names {
		out[n] = tables[i]
	}
	return out, nil
}

func (c *Catalog) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

func (ds Dataset) source() (source.Format, source.Options) {
	opts := source.Options{Encoding: ds.Encoding, Sheet: ds.Sheet, SkipRows: ds.SkipRows}
	if ds.Delimiter != "" {
		r, _ := utf8.DecodeRuneInString(ds.Delimiter)
		opts.Delimiter = r
	}
	switch ds.Type {
	case TypeXLSX:
		return source.FormatXLSX, opts
	case TypeGeoJSON:
		return source.FormatGeoJSON, opts
	case TypeShapefile:
		return source.FormatShapefile, opts
	}
	return source.FormatCSV, opts
}
