// Package coordinator answers "which items are nearest to this one" by
// scattering the question over every worker of a group and merging the
// answers.
//
// # Query lifecycle
//
//	DISCOVER ──► FANOUT ──► COLLECT ──► MERGE ──► DONE
//	    │           │           │
//	    └───────────┴───────────┴──────────────► ABORTED
//
// DISCOVER reads the group's member list from the directory exactly once.
// That snapshot becomes a Plan: shard i of L goes to the i-th member, and
// every request carries the same L. Members that join while the query runs
// are not consulted; an empty list aborts with cluster.ErrEmptyGroup.
//
// FANOUT sends one shard request per member concurrently, each with its own
// deadline (Config.ShardTimeout).
//
// COLLECT turns every request into a ShardOutcome tagged ok, timeout or
// error. What a failure does depends on the Policy:
//
//   - PolicyStrict: the first failure cancels the shards still in flight
//     and the query aborts.
//   - PolicyBestEffort: failed shards are left out and listed in
//     Result.Missing. The query aborts only if no shard succeeded.
//
// MERGE concatenates the ok outcomes in shard order, sorts ascending by
// distance with a stable sort and keeps the first k.
//
// # Errors
//
// Every abort is a *QueryError naming the step, and the shard and member
// when there is one. errors.Is reaches the cluster error taxonomy through
// it, so a worker's 404 surfaces as cluster.ErrLookup.
//
// # Example
//
//	c := coordinator.New(coordinator.Config{
//		DirectoryURL: "http://127.0.0.1:5000",
//		ShardTimeout: 10 * time.Second,
//	}, cluster.NewHTTPTransport(0), logger)
//
//	res, err := c.Recommend(ctx, "Toy Story (1995)", 10)
//	if err != nil {
//		return err
//	}
//	for _, n := range res.Neighbors {
//		fmt.Println(n.ID, n.Label, n.Distance)
//	}
package coordinator
