package shard

import (
	"cmp"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Query asks for the k nearest neighbors of Label within shard Index of Count.
type Query struct {
	Label string
	K     int
	Index int
	Count int
}

// QueryFromRequest converts a decoded wire request.
func QueryFromRequest(r cluster.ShardRequest) Query {
	return Query{Label: r.MovieTitle, K: r.NumRecs, Index: r.Index, Count: r.Length}
}

// Euclidean returns the Euclidean norm of a-b. Both vectors must have the
// same length.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type candidate struct {
	id   int
	dist float64
}

// ComputeShard returns at most q.K neighbors of the target item found in the
// shard's window, ascending by distance. The target itself is skipped.
func (c *Collection) ComputeShard(q Query) ([]cluster.Neighbor, error) {
	if q.K < 1 {
		return nil, fmt.Errorf("%w: k %d must be positive", cluster.ErrShardComputation, q.K)
	}
	target, ok := c.Lookup(q.Label)
	if !ok {
		return nil, fmt.Errorf("%w: unknown title %q", cluster.ErrLookup, q.Label)
	}
	start, end, err := Window(len(c.items), q.Index, q.Count)
	if err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, end-start)
	for _, it := range c.items[start:end] {
		if it.ID == target.ID {
			continue
		}
		cands = append(cands, candidate{id: it.ID, dist: Euclidean(it.Vector, target.Vector)})
	}

	// Stable so equal distances keep collection order.
	slices.SortStableFunc(cands, func(a, b candidate) int {
		return cmp.Compare(a.dist, b.dist)
	})
	if len(cands) > q.K {
		cands = cands[:q.K]
	}

	out := make([]cluster.Neighbor, 0, len(cands))
	for _, cd := range cands {
		label, _ := c.Label(cd.id)
		out = append(out, cluster.Neighbor{ID: cd.id, Label: label, Distance: cd.dist})
	}
	return out, nil
}
