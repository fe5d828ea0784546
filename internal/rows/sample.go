package rows

import (
	"math/rand"
	"sort"
)

// Sample returns a reproducible random subset of n rows. The same seed
// over the same input always selects the same rows, and the subset
// keeps the original file order. n <= 0 or n >= len(rows) returns the
// input unchanged.
func Sample(in []Row, n int, seed int64) []Row {
	if n <= 0 || n >= len(in) {
		return in
	}
	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(in))[:n]
	sort.Ints(picked)
	out := make([]Row, n)
	for i, idx := range picked {
		out[i] = in[idx]
	}
	return out
}
