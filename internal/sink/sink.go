// Package sink persists run output: an append-only JSONL stream with
// one fully-stamped record per item, and a cleaned CSV projection
// derived from that stream after the run.
package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mengysun/DataParasite/pkg/records"
)

// JSONL appends records to a line-delimited JSON file. It is owned by
// the executor's single consumer goroutine and is not safe for
// concurrent use.
type JSONL struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// Create opens the output file for a fresh run: parent directories are
// created and any previous content is truncated, so a rerun never
// interleaves with stale records.
func Create(path string) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &JSONL{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record as a single JSON line.
func (s *JSONL) Append(rec records.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (s *JSONL) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// Path returns the JSONL file location.
func (s *JSONL) Path() string { return s.path }

// ReadAll loads every record from a JSONL stream. Exporters use it to
// replay a finished run without the executor holding records in memory.
func ReadAll(path string) ([]records.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	defer f.Close()

	var out []records.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec records.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode record on line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read output stream: %w", err)
	}
	return out, nil
}
