package rows

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the values of cols in order, separated so that
// ("ab","c") and ("a","bc") key differently. Used to spot duplicate
// input entities before they burn tokens.
func Fingerprint(row Row, cols []string) uint64 {
	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(strings.TrimSpace(row[col]))
	}
	return xxh3.HashString(b.String())
}

// Dedupe collapses rows that fingerprint identically over cols,
// keeping the earliest occurrence and preserving input order. The
// second return is the number of rows dropped. Empty cols disables
// deduplication.
func Dedupe(in []Row, cols []string) ([]Row, int) {
	if len(in) == 0 || len(cols) == 0 {
		return in, 0
	}
	seen := make(map[uint64]bool, len(in))
	out := in[:0:0]
	for _, row := range in {
		fp := Fingerprint(row, cols)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, row)
	}
	return out, len(in) - len(out)
}
