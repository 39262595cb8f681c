// Package shard implements the worker side of a distributed nearest-neighbor
// query: an immutable ordered item collection, the deterministic window that
// one shard of a query covers, and the ranked neighbor search over it.
//
// # Partitioning
//
// A query split across L shards gives shard i the half-open index range
//
//	size  = N / L                      (integer division)
//	start = i * size
//	end   = (i+1) * size               for i < L-1
//	end   = N                          for i == L-1
//
// The last window absorbs the remainder, so the L windows cover [0, N)
// exactly once. With N=10 and L=3 the windows are [0,3), [3,6), [6,10).
//
// # Search
//
// ComputeShard measures the Euclidean distance from the target item to every
// other item in the window, sorts ascending and keeps the first k. The target
// never appears in its own results.
//
// # Concurrency Model
//
// A Collection is read-only after NewCollection returns and may be shared by
// any number of goroutines without locking.
package shard
