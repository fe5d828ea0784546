package worker

import (
	"fmt"
	"strconv"
	"strings"
)

// NotFound marks a field the model could not determine.
const NotFound = "not_found"

// Tidy flattens a decoded payload value to its textual record form:
// nil becomes NotFound, booleans lowercase, numbers their plain
// decimal form, and strings pass through unless blank after trimming.
// Tidy(Tidy(v)) == Tidy(v) for every input.
func Tidy(v any) string {
	switch t := v.(type) {
	case nil:
		return NotFound
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		if strings.TrimSpace(t) == "" {
			return NotFound
		}
		return t
	default:
		// Schema decoding only yields the cases above; anything else
		// is stringified rather than dropped.
		return fmt.Sprint(t)
	}
}
