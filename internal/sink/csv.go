package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mengysun/DataParasite/pkg/records"
)

// maxRecordLine bounds a single JSONL line when reading the stream back.
// Research payloads can be large; 1 MiB is far above anything observed.
const maxRecordLine = 1 << 20

// WriteCleanCSV projects the JSONL stream at jsonlPath down to the
// analysis-friendly columns: inputCols first, then outputCols, in the
// order given. The CSV lands next to the stream with a .csv extension
// and its path is returned. Telemetry fields (tokens, cost, status) are
// left behind in the JSONL.
func WriteCleanCSV(jsonlPath string, inputCols, outputCols []string) (string, error) {
	in, err := os.Open(jsonlPath)
	if err != nil {
		return "", fmt.Errorf("open output stream: %w", err)
	}
	defer in.Close()

	csvPath := strings.TrimSuffix(jsonlPath, filepath.Ext(jsonlPath)) + ".csv"
	out, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("create clean csv: %w", err)
	}
	defer out.Close()

	header := make([]string, 0, len(inputCols)+len(outputCols))
	header = append(header, inputCols...)
	header = append(header, outputCols...)

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write clean csv: %w", err)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	line := 0
	row := make([]string, len(header))
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec records.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return "", fmt.Errorf("decode record on line %d: %w", line, err)
		}
		for i, col := range header {
			row[i] = rec.StringOr(col, "")
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write clean csv: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read output stream: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write clean csv: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close clean csv: %w", err)
	}
	return csvPath, nil
}
