// Package rows loads the input CSV and turns raw rows into prompt
// variables. Parsing is deliberately tolerant of real-world exports:
// a UTF-8 BOM on the header, lazy quoting, and ragged lines (which are
// skipped and counted, never fatal). Cell values are kept verbatim;
// trimming happens at projection time so the raw row stays inspectable.
package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/mengysun/DataParasite/internal/config"
)

// Row is one CSV record keyed by header name.
type Row map[string]string

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "﻿"

// Load reads all rows from a CSV file. The second return is the number
// of malformed rows that were skipped.
func Load(path string) ([]Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse consumes CSV records from r. The first row is the header; its
// names become the row keys verbatim (after BOM/space cleanup). Rows
// whose width differs from the header are skipped and counted.
func Parse(r io.Reader) ([]Row, int, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range header {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		header[i] = c
	}

	var out []Row
	var skipped int
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("skipping row %d: %v", line, err)
			skipped++
			continue
		}
		if len(rec) != len(header) {
			log.Printf("skipping row %d: expected %d fields, got %d", line, len(header), len(rec))
			skipped++
			continue
		}
		row := make(Row, len(header))
		for i, val := range rec {
			row[header[i]] = val
		}
		out = append(out, row)
	}
	return out, skipped, nil
}

// Header reconstructs the column set of loaded rows from the first
// row, sorted so callers get a stable order out of the map. Returns
// nil for an empty batch.
func Header(rs []Row) []string {
	if len(rs) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rs[0]))
	for col := range rs[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Project maps a row to prompt variables: for each binding, the cell
// under the CSV column (absent reads as empty) is trimmed and stored
// under the variable name.
func Project(row Row, mapping []config.MappingEntry) map[string]string {
	vars := make(map[string]string, len(mapping))
	for _, m := range mapping {
		vars[m.Var] = strings.TrimSpace(row[m.Column])
	}
	return vars
}

// MissingRequired returns the required column names that are absent or
// blank after trimming, in the order they are configured.
func MissingRequired(row Row, required []string) []string {
	var missing []string
	for _, col := range required {
		if strings.TrimSpace(row[col]) == "" {
			missing = append(missing, col)
		}
	}
	return missing
}
