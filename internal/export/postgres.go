package export

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mengysun/DataParasite/internal/config"
)

// postgresExporter creates the results table on first export and
// bulk-loads records with COPY.
type postgresExporter struct {
	pool  *pgxpool.Pool
	table string
	cols  []Column
}

func newPostgres(ctx context.Context, spec config.ExportSpec, cols []Column) (*postgresExporter, error) {
	pool, err := pgxpool.New(ctx, spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("export: pgxpool: %w", err)
	}
	return &postgresExporter{pool: pool, table: spec.Table, cols: cols}, nil
}

func (e *postgresExporter) Export(ctx context.Context, run Run) error {
	if _, err := e.pool.Exec(ctx, postgresCreateSQL(e.table, e.cols)); err != nil {
		return fmt.Errorf("export: create table: %w", err)
	}
	if len(run.Records) == 0 {
		return nil
	}

	idents := make([]string, 0, len(e.cols)+1)
	idents = append(idents, "run_id")
	for _, c := range e.cols {
		idents = append(idents, c.Ident)
	}
	rows := make([][]any, len(run.Records))
	for i, rec := range run.Records {
		row := make([]any, 0, len(e.cols)+1)
		row = append(row, run.ID)
		row = append(row, rowValues(rec, e.cols)...)
		rows[i] = row
	}

	n, err := e.pool.CopyFrom(ctx, splitFQN(e.table), idents, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("export: copy: %w", err)
	}
	log.Printf("Exported %d records to postgres table %s", n, e.table)
	return nil
}

func (e *postgresExporter) Close() error {
	e.pool.Close()
	return nil
}

// postgresCreateSQL builds a deterministic CREATE TABLE IF NOT EXISTS
// statement with a leading run_id column.
func postgresCreateSQL(table string, cols []Column) string {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, quoteIdent("run_id")+" TEXT")
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Ident)+" "+postgresType(c.Type))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(table),
		strings.Join(defs, ",\n  "),
	)
}

func postgresType(t ColType) string {
	switch t {
	case ColInt:
		return "BIGINT"
	case ColReal:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// quoteIdent quotes a single identifier segment; embedded quotes are
// escaped.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// quoteFQN quotes a possibly schema-qualified name like
// "public.results" to "public"."results".
func quoteFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
