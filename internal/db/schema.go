package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Column is a column definition for CreateTable.
type Column struct {
	Name string
	Type string // SQL type, e.g. "BIGINT", "DOUBLE PRECISION", "geometry(Geometry, 4326)"
}

// CreateTable issues CREATE TABLE IF NOT EXISTS for table. primaryKey is
// optional.
func CreateTable(ctx context.Context, pool Pool, table string, cols []Column, primaryKey ...string) error {
	if len(cols) == 0 {
		return eris.Errorf("db: create %s: no columns", table)
	}
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type))
	}
	if len(primaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAndJoin(primaryKey)))
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sanitizeTable(table), strings.Join(defs, ", "))
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "db: create %s", table)
	}
	return nil
}
