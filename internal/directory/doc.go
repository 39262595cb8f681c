// Package directory implements the membership directory: the process workers
// join at startup and the coordinator lists before every query.
//
// # Groups
//
// A group is a flat set of worker endpoints. Groups are created explicitly
// when the directory starts (only group 0 in a stock deployment), so an empty
// group and an unknown group are distinct: listing the first returns [],
// listing the second is a lookup failure.
//
// # Backends
//
// MemoryStore keeps each group in a skipmap ordered by (host, port). Joins
// go through LoadOrStore, which makes concurrent joins linearizable and
// re-joins idempotent, and gives every list the same member order.
//
// ZKStore keeps each member as an ephemeral ZooKeeper znode for deployments
// that already run an ensemble.
//
// # Liveness
//
// Members are never removed by the baseline directory. HealthMonitor can be
// enabled to probe /health on every member and evict those that stop
// answering.
package directory
