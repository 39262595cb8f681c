// Package cluster holds the types and plumbing shared by every process in the
// recommender: the directory, the workers and the coordinator.
//
// # Overview
//
// The system is a flat group of worker processes that each hold the same
// ordered item collection. A directory process records which workers are
// alive; a coordinator reads that list, hands every worker one contiguous
// shard of the collection and merges the ranked answers.
//
//	                ┌──────────────┐
//	                │  Directory   │
//	                │  group 0     │
//	                └──────▲───────┘
//	          join (PUT)   │   list (GET)
//	      ┌────────────────┼─────────────────┐
//	      │                │                 │
//	┌─────┴─────┐    ┌─────┴─────┐     ┌─────┴───────┐
//	│ Worker 0  │    │ Worker 1  │ ◄── │ Coordinator │
//	│ [0, w)    │    │ [w, N)    │ knn │ merge top-k │
//	└───────────┘    └───────────┘     └─────────────┘
//
// # Core Types
//
// Member: a worker endpoint identified by (host, port). It travels on the
// wire as the two element array ["host", port].
//
// Neighbor: one ranked candidate (id, label, distance). It travels on the
// wire as ["id", "label", "distance"] with every field a string.
//
// JoinRequest / ShardRequest: the request bodies of the directory join call
// and the worker shard-compute call.
//
// # Communication Protocol
//
// All calls are HTTP with UTF-8 JSON bodies:
//
// Join (PUT /parallelism-entity):
//   - Body {"entity": 0, "address": "127.0.0.1", "port": 5001}
//   - Returns the current member list with the directory itself filtered out
//
// List (GET /parallelism-entity):
//   - No body, same response shape as join
//
// Shard compute (POST /knn):
//   - Body {"num_recs": k, "movie_title": "...", "index": i, "length": L}
//   - Returns at most k neighbors ascending by distance
//
// Failed calls answer with the envelope {"status": "error", "error": "..."}
// and a status code derived from the error taxonomy in errors.go.
//
// # Failure Handling
//
// Transport is the only way the core talks to a peer. HTTPTransport turns
// network failures into ErrTransport and non-2xx answers into *StatusError,
// which unwraps to ErrLookup (404), ErrShardComputation (400) or ErrTransport.
package cluster
