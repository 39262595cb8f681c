package shard

import (
	"fmt"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Window returns the half-open range [start, end) of an n-item collection
// covered by shard index out of count. The last shard extends to n.
func Window(n, index, count int) (start, end int, err error) {
	if count < 1 {
		return 0, 0, fmt.Errorf("%w: shard count %d must be positive", cluster.ErrShardComputation, count)
	}
	if index < 0 || index >= count {
		return 0, 0, fmt.Errorf("%w: shard index %d out of range [0, %d)", cluster.ErrShardComputation, index, count)
	}
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: negative collection size %d", cluster.ErrShardComputation, n)
	}

	size := n / count
	start = index * size
	if index == count-1 {
		return start, n, nil
	}
	return start, start + size, nil
}
