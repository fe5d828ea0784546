package export

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mengysun/DataParasite/internal/config"
)

// sqliteExporter batches INSERTs inside one transaction. SQLite has no
// bulk-load primitive, but a single transaction keeps moderate volumes
// fast.
type sqliteExporter struct {
	db    *sql.DB
	table string
	cols  []Column
}

func newSQLite(ctx context.Context, spec config.ExportSpec, cols []Column) (*sqliteExporter, error) {
	db, err := sql.Open("sqlite", spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("export: sqlite open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: sqlite ping: %w", err)
	}
	return &sqliteExporter{db: db, table: spec.Table, cols: cols}, nil
}

func (e *sqliteExporter) Export(ctx context.Context, run Run) error {
	if _, err := e.db.ExecContext(ctx, sqliteCreateSQL(e.table, e.cols)); err != nil {
		return fmt.Errorf("export: create table: %w", err)
	}
	if len(run.Records) == 0 {
		return nil
	}

	placeholders := make([]string, len(e.cols)+1)
	idents := make([]string, len(e.cols)+1)
	idents[0], placeholders[0] = quoteIdent("run_id"), "?"
	for i, c := range e.cols {
		idents[i+1] = quoteIdent(c.Ident)
		placeholders[i+1] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(e.table),
		strings.Join(idents, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("export: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range run.Records {
		row := make([]any, 0, len(e.cols)+1)
		row = append(row, run.ID)
		row = append(row, rowValues(rec, e.cols)...)
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return fmt.Errorf("export: insert: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}
	log.Printf("Exported %d records to sqlite table %s", inserted, e.table)
	return nil
}

func (e *sqliteExporter) Close() error { return e.db.Close() }

// sqliteCreateSQL mirrors the postgres DDL with SQLite storage types.
func sqliteCreateSQL(table string, cols []Column) string {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, quoteIdent("run_id")+" TEXT")
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Ident)+" "+sqliteType(c.Type))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteIdent(table),
		strings.Join(defs, ",\n  "),
	)
}

func sqliteType(t ColType) string {
	switch t {
	case ColInt:
		return "INTEGER"
	case ColReal:
		return "REAL"
	default:
		return "TEXT"
	}
}
