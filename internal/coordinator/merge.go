package coordinator

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Merge concatenates parts in order, sorts ascending by distance and keeps
// the first k. Equal distances keep their concatenation order, so the result
// is deterministic for a fixed shard layout.
func Merge(parts [][]cluster.Neighbor, k int) ([]cluster.Neighbor, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k %d must be positive", cluster.ErrShardComputation, k)
	}
	var n int
	for _, p := range parts {
		n += len(p)
	}
	all := make([]cluster.Neighbor, 0, n)
	for _, p := range parts {
		all = append(all, p...)
	}
	slices.SortStableFunc(all, func(a, b cluster.Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}
