// Package export ships a finished run to an optional downstream store.
// Tabular backends (postgres, sqlite) create a results table from the
// record columns and bulk-insert every record; kafka publishes one
// message per record; s3 archives the run artifacts.
//
// Exporters run strictly post-run and never alter per-item semantics:
// a failed export leaves the JSONL and CSV artifacts untouched on disk.
package export

import (
	"context"
	"fmt"

	"github.com/mengysun/DataParasite/internal/config"
	"github.com/mengysun/DataParasite/pkg/records"
)

// Run bundles everything a backend may need about a finished batch.
type Run struct {
	ID        string           // run identifier, used for keys and object prefixes
	Records   []records.Record // stamped records in sink order
	JSONLPath string           // telemetry stream artifact
	CSVPath   string           // clean projection artifact, may be empty
}

// Exporter ships one finished run. Implementations are single-use:
// Export once, then Close.
type Exporter interface {
	Export(ctx context.Context, run Run) error
	Close() error
}

// New builds the exporter selected by spec.Kind. A kind of "" or
// "none" returns (nil, nil); callers skip export entirely.
// Tabular backends derive their column set from the task config via
// TableColumns.
func New(ctx context.Context, spec config.ExportSpec, cols []Column) (Exporter, error) {
	switch spec.Kind {
	case "", "none":
		return nil, nil
	case "postgres":
		return newPostgres(ctx, spec, cols)
	case "sqlite":
		return newSQLite(ctx, spec, cols)
	case "kafka":
		return newKafka(spec), nil
	case "s3":
		return newS3(spec)
	default:
		return nil, fmt.Errorf("export: unknown kind %q", spec.Kind)
	}
}

// ColType is the storage type of one results-table column.
type ColType int

const (
	ColText ColType = iota
	ColInt
	ColReal
)

// Column pairs a record key with the SQL-safe identifier and type it
// gets in a results table.
type Column struct {
	Key   string // record key as stamped by the executor
	Ident string // normalized identifier
	Type  ColType
}

// telemetry lists the executor-stamped keys, in record order, with
// their storage types. Everything else in a record is text.
var telemetry = []Column{
	{Key: "timestamp", Ident: "timestamp", Type: ColText},
	{Key: "model", Ident: "model", Type: ColText},
	{Key: "response_id", Ident: "response_id", Type: ColText},
	{Key: "input_tokens", Ident: "input_tokens", Type: ColInt},
	{Key: "output_tokens", Ident: "output_tokens", Type: ColInt},
	{Key: "cached_tokens", Ident: "cached_tokens", Type: ColInt},
	{Key: "web_search_calls", Ident: "web_search_calls", Type: ColInt},
	{Key: "total_cost", Ident: "total_cost", Type: ColReal},
	{Key: "duration_seconds", Ident: "duration_seconds", Type: ColReal},
	{Key: "status", Ident: "status", Type: ColText},
	{Key: "error", Ident: "error", Type: ColText},
}

// TableColumns derives the results-table layout from a task config:
// echoed input columns in mapping order, then schema columns in
// declaration order, then the telemetry stamp. Identifiers are
// normalized and deduplicated so any config yields a valid table.
func TableColumns(cfg *config.TaskConfig) []Column {
	var cols []Column
	seen := map[string]int{}

	add := func(key string, typ ColType) {
		ident := NormalizeIdent(key)
		seen[ident]++
		if n := seen[ident]; n > 1 {
			ident = fmt.Sprintf("%s_%d", ident, n)
		}
		cols = append(cols, Column{Key: key, Ident: ident, Type: typ})
	}

	for _, m := range cfg.ColumnMapping {
		add("input_"+m.Var, ColText)
	}
	for _, name := range cfg.Schema.Columns() {
		add(name, ColText)
	}
	for _, t := range telemetry {
		add(t.Key, t.Type)
	}
	return cols
}

// rowValues extracts one insert row aligned to cols. Missing keys
// become nil so numeric columns stay NULL instead of zero.
func rowValues(rec records.Record, cols []Column) []any {
	row := make([]any, len(cols))
	for i, c := range cols {
		v, ok := rec[c.Key]
		if !ok {
			continue
		}
		row[i] = coerceValue(v, c.Type)
	}
	return row
}

// coerceValue nudges JSON-decoded values toward the column type.
// encoding/json yields float64 for every number; integer columns get
// an int64 when the value is integral.
func coerceValue(v any, typ ColType) any {
	if typ != ColInt {
		return v
	}
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
	case int:
		return int64(n)
	}
	return v
}
