// Package records defines the flat record shape shared by the sink, the
// exporters, and the run aggregation. A Record is one JSON object in the
// output stream: string keys, primitive values.
package records

// Record is a flat mapping of column/field names to primitive values
// (string, int64, float64, bool, or nil).
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// StringOr returns the value under key as a string, or def when the key is
// absent or not a string.
func (r Record) StringOr(key, def string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
