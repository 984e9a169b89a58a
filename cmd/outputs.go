package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/db"
	"github.com/sells-group/firerisk-cli/internal/pipeline"
	"github.com/sells-group/firerisk-cli/internal/sink"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// tableNames writes datasets under their configured table names.
type tableNames struct {
	sink.Sink
	names map[string]string
}

func (s tableNames) Write(ctx context.Context, name string, t *table.Table) (int64, error) {
	if n, ok := s.names[name]; ok && n != "" {
		name = n
	}
	return s.Sink.Write(ctx, name, t)
}

// openSink builds the sinks listed in output.formats. The returned func
// closes any database handles.
func openSink(ctx context.Context) (sink.Sink, func(), error) {
	var (
		sinks   sink.Multi
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, format := range cfg.Output.Formats {
		switch format {
		case "csv":
			sinks = append(sinks, sink.CSVSink{Dir: cfg.Output.Dir})
		case "geojson":
			sinks = append(sinks, sink.GeoJSONSink{Dir: cfg.Output.Dir})
		case "sqlite":
			s, err := sink.NewSQLite(cfg.Output.SQLitePath)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { s.Close() }) //nolint:errcheck
			sinks = append(sinks, s)
		case "postgres":
			pool, err := db.Connect(ctx, cfg.Output.DatabaseURL, &db.PoolConfig{AppName: "firerisk-sink"})
			if err != nil {
				closeAll()
				return nil, nil, eris.Wrap(err, "connect output database")
			}
			closers = append(closers, pool.Close)
			sinks = append(sinks, sink.NewPostgres(pool, "").WithKey(cfg.Output.MeshTable, sink.KeyColumn))
		default:
			closeAll()
			return nil, nil, eris.Errorf("unknown output format %q", format)
		}
	}

	return tableNames{
		Sink: sinks,
		names: map[string]string{
			pipeline.DatasetInputTable: cfg.Output.Table,
			pipeline.DatasetSquareMesh: cfg.Output.MeshTable,
		},
	}, closeAll, nil
}
