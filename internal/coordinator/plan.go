package coordinator

import (
	"fmt"

	"github.com/dreamware/knnshard/internal/cluster"
)

// ShardAssignment binds one window of the collection to the member that
// scans it.
type ShardAssignment struct {
	Member cluster.Member // The member computing this shard
	Shard  int            // Window index in [0, Plan.Len())
}

// Plan is the shard layout of a single query. It is built from one list
// snapshot and never changes afterwards, so shard i always goes to the i-th
// listed member and every member is told the same shard count.
type Plan struct {
	members []cluster.Member
}

// NewPlan snapshots members. An empty list is ErrEmptyGroup.
func NewPlan(members []cluster.Member) (*Plan, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: no workers registered", cluster.ErrEmptyGroup)
	}
	snapshot := make([]cluster.Member, len(members))
	copy(snapshot, members)
	return &Plan{members: snapshot}, nil
}

// Len is the shard count L sent with every request.
func (p *Plan) Len() int {
	return len(p.members)
}

// Members returns a copy of the snapshot.
func (p *Plan) Members() []cluster.Member {
	out := make([]cluster.Member, len(p.members))
	copy(out, p.members)
	return out
}

// Assignments lists every shard in index order.
func (p *Plan) Assignments() []ShardAssignment {
	out := make([]ShardAssignment, len(p.members))
	for i, m := range p.members {
		out[i] = ShardAssignment{Shard: i, Member: m}
	}
	return out
}

// Request builds the shard-compute body for a.
func (p *Plan) Request(a ShardAssignment, label string, k int) cluster.ShardRequest {
	return cluster.ShardRequest{
		MovieTitle: label,
		NumRecs:    k,
		Index:      a.Shard,
		Length:     len(p.members),
	}
}
