package coordinator

import (
	"fmt"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Step names the query stage an error happened in.
type Step string

const (
	StepDiscover Step = "discover"
	StepDispatch Step = "dispatch"
	StepMerge    Step = "merge"
)

// QueryError reports why a query aborted. Shard is -1 when the failure is
// not tied to one shard.
type QueryError struct {
	Err    error
	Member cluster.Member
	Step   Step
	Shard  int
}

func (e *QueryError) Error() string {
	if e.Shard < 0 {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s shard %d (%s): %v", e.Step, e.Shard, e.Member, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
