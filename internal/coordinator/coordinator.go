package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Policy decides what a failed shard does to the query.
type Policy int

const (
	// PolicyStrict aborts the query on the first failed shard and cancels
	// the shards still in flight.
	PolicyStrict Policy = iota

	// PolicyBestEffort merges whatever shards succeeded and reports the
	// rest in Result.Missing. The query still aborts when every shard fails.
	PolicyBestEffort
)

// ParsePolicy accepts "strict" or "best-effort". Empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "strict":
		return PolicyStrict, nil
	case "best-effort":
		return PolicyBestEffort, nil
	}
	return PolicyStrict, fmt.Errorf("%w: policy %q", cluster.ErrInvalidArgument, s)
}

func (p Policy) String() string {
	if p == PolicyBestEffort {
		return "best-effort"
	}
	return "strict"
}

// Config controls where members are discovered and how shards are run.
type Config struct {
	DirectoryURL string
	Group        int
	ShardTimeout time.Duration // per shard request; 0 disables

	// DiscoverTimeout bounds the directory list call. Zero falls back to
	// ShardTimeout.
	DiscoverTimeout time.Duration
	Policy          Policy
}

// OutcomeStatus tags how a shard ended.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeTimeout OutcomeStatus = "timeout"
	OutcomeError   OutcomeStatus = "error"
)

// ShardOutcome is what one shard produced.
type ShardOutcome struct {
	Err       error              `json:"-"`
	Member    cluster.Member     `json:"member"`
	Status    OutcomeStatus      `json:"status"`
	Error     string             `json:"error,omitempty"`
	Neighbors []cluster.Neighbor `json:"-"`
	Shard     int                `json:"shard"`
	Elapsed   time.Duration      `json:"elapsed_ns"`
}

// Result is a completed query.
type Result struct {
	QueryID   string             `json:"query_id"`
	Label     string             `json:"title"`
	Members   []cluster.Member   `json:"members"`
	Neighbors []cluster.Neighbor `json:"neighbors"`
	Shards    []ShardOutcome     `json:"shards"`
	Missing   []int              `json:"missing,omitempty"`
	K         int                `json:"k"`
	Elapsed   time.Duration      `json:"elapsed_ns"`
}

// Coordinator runs queries against the workers of one group.
type Coordinator struct {
	transport cluster.Transport
	log       *slog.Logger
	cfg       Config
}

// New creates a coordinator sending every request through t.
//
// Example:
//
//	c := coordinator.New(coordinator.Config{
//	    DirectoryURL: "http://127.0.0.1:5000",
//	    ShardTimeout: 10 * time.Second,
//	    Policy:       coordinator.PolicyBestEffort,
//	}, cluster.NewHTTPTransport(0), log)
func New(cfg Config, t cluster.Transport, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{cfg: cfg, transport: t, log: log.With("component", "coordinator")}
}

// Discover asks the directory for the group's members, giving up after
// DiscoverTimeout.
func (c *Coordinator) Discover(ctx context.Context) ([]cluster.Member, error) {
	if d := c.discoverTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	path := cluster.EntityPath + "?entity=" + strconv.Itoa(c.cfg.Group)
	var members []cluster.Member
	if err := cluster.SendJSON(ctx, c.transport, c.cfg.DirectoryURL, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Coordinator) discoverTimeout() time.Duration {
	if c.cfg.DiscoverTimeout > 0 {
		return c.cfg.DiscoverTimeout
	}
	return c.cfg.ShardTimeout
}

// Recommend returns the k items nearest to label across every shard of the
// group. The member list is read once; that snapshot alone fixes the shard
// layout for the whole query.
//
// Parameters:
//   - ctx: Bounds the whole query; canceling it cancels every shard call
//   - label: Title of the target item, which is never among the results
//   - k: Number of neighbors wanted, at least 1
//
// Returns:
//   - *Result: Merged neighbors in ascending distance plus per-shard outcomes
//   - error: A *QueryError naming the step, and the shard when there is one
//
// Example:
//
//	res, err := c.Recommend(ctx, "Toy Story (1995)", 10)
//	var qe *coordinator.QueryError
//	if errors.As(err, &qe) && qe.Step == coordinator.StepDispatch {
//	    log.Error("shard failed", "shard", qe.Shard, "member", qe.Member)
//	}
func (c *Coordinator) Recommend(ctx context.Context, label string, k int) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := c.log.With("query", id, "title", label, "k", k)

	members, err := c.Discover(ctx)
	if err != nil {
		log.Error("discover failed", "error", err)
		return nil, &QueryError{Step: StepDiscover, Shard: -1, Err: err}
	}
	plan, err := NewPlan(members)
	if err != nil {
		log.Error("no workers to query", "directory", c.cfg.DirectoryURL, "group", c.cfg.Group)
		return nil, &QueryError{Step: StepDiscover, Shard: -1, Err: err}
	}
	log.Debug("dispatching", "shards", plan.Len(), "policy", c.cfg.Policy)

	outcomes, err := c.dispatch(ctx, plan, label, k)
	if err != nil {
		log.Error("query aborted", "error", err)
		return nil, err
	}

	res := &Result{
		QueryID: id,
		Label:   label,
		K:       k,
		Members: plan.Members(),
		Shards:  outcomes,
	}
	parts := make([][]cluster.Neighbor, 0, len(outcomes))
	var firstFailure *ShardOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.Status != OutcomeOK {
			res.Missing = append(res.Missing, o.Shard)
			if firstFailure == nil {
				firstFailure = o
			}
			continue
		}
		parts = append(parts, o.Neighbors)
	}
	if len(parts) == 0 {
		err := &QueryError{
			Step:   StepDispatch,
			Shard:  firstFailure.Shard,
			Member: firstFailure.Member,
			Err:    fmt.Errorf("all %d shards failed: %w", len(outcomes), firstFailure.Err),
		}
		log.Error("query aborted", "error", err)
		return nil, err
	}

	if res.Neighbors, err = Merge(parts, k); err != nil {
		return nil, &QueryError{Step: StepMerge, Shard: -1, Err: err}
	}
	res.Elapsed = time.Since(start)
	log.Info("query done", "shards", plan.Len(), "missing", len(res.Missing),
		"results", len(res.Neighbors), "elapsed", res.Elapsed)
	return res, nil
}

// dispatch runs every shard concurrently. Under PolicyStrict the first
// failure cancels the rest and is returned as a *QueryError; under
// PolicyBestEffort failures are only recorded in the outcomes.
func (c *Coordinator) dispatch(ctx context.Context, plan *Plan, label string, k int) ([]ShardOutcome, error) {
	outcomes := make([]ShardOutcome, plan.Len())
	g, gctx := errgroup.WithContext(ctx)

	for _, a := range plan.Assignments() {
		req := plan.Request(a, label, k)
		g.Go(func() error {
			o := c.runShard(gctx, a, req)
			outcomes[a.Shard] = o
			if o.Status != OutcomeOK && c.cfg.Policy == PolicyStrict {
				return &QueryError{Step: StepDispatch, Shard: a.Shard, Member: a.Member, Err: o.Err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *Coordinator) runShard(ctx context.Context, a ShardAssignment, req cluster.ShardRequest) ShardOutcome {
	if c.cfg.ShardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ShardTimeout)
		defer cancel()
	}

	start := time.Now()
	o := ShardOutcome{Shard: a.Shard, Member: a.Member}
	var neighbors []cluster.Neighbor
	err := cluster.SendJSON(ctx, c.transport, a.Member.URL(), http.MethodPost, cluster.KNNPath, req, &neighbors)
	o.Elapsed = time.Since(start)

	switch {
	case err == nil:
		o.Status = OutcomeOK
		o.Neighbors = neighbors
		return o
	case cluster.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		o.Status = OutcomeTimeout
	default:
		o.Status = OutcomeError
	}
	o.Err = err
	o.Error = err.Error()
	c.log.Warn("shard failed", "shard", a.Shard, "member", a.Member.String(),
		"status", o.Status, "elapsed", o.Elapsed, "error", err)
	return o
}
