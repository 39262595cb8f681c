// Package worker serves shard computations over one in-memory collection.
//
// Every worker in a group holds the same collection. A request names the
// target label, k, and which of L contiguous windows this worker must scan;
// the worker answers with at most k neighbors from that window.
//
// HTTP API:
//
//	POST /knn      shard computation
//	GET  /health   liveness probe used by the directory
//	GET  /info     collection size and request counters
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/knnshard/internal/cluster"
	"github.com/dreamware/knnshard/internal/shard"
)

// KNNPath is the shard-compute endpoint.
const KNNPath = cluster.KNNPath

// maxRequestBytes bounds a shard-compute body.
const maxRequestBytes = 1 << 20

// Worker holds the collection and request accounting of one process.
type Worker struct {
	coll *shard.Collection
	sem  *semaphore.Weighted // nil when unlimited
	log  *slog.Logger
	self cluster.Member

	maxConcurrent int
	served        atomic.Int64
	failed        atomic.Int64
	inFlight      atomic.Int64
}

// New creates a worker over coll. maxConcurrent caps simultaneous
// computations; 0 means no cap.
func New(coll *shard.Collection, self cluster.Member, maxConcurrent int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		coll:          coll,
		self:          self,
		maxConcurrent: maxConcurrent,
		log:           log.With("component", "worker", "member", self.String()),
	}
	if maxConcurrent > 0 {
		w.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return w
}

// Compute runs one shard computation, waiting for a free slot when the
// worker is at its concurrency cap.
func (w *Worker) Compute(ctx context.Context, req cluster.ShardRequest) ([]cluster.Neighbor, error) {
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: waiting for a compute slot: %w", cluster.ErrTransport, err)
		}
		defer w.sem.Release(1)
	}
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	return w.coll.ComputeShard(shard.QueryFromRequest(req))
}

// Handler returns the worker's HTTP API.
func (w *Worker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		cluster.WriteJSON(rw, http.StatusOK, cluster.NewOKResponse())
	})
	r.Get("/info", w.handleInfo)
	r.Post(KNNPath, w.handleKNN)
	return r
}

func (w *Worker) handleKNN(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		w.fail(rw, fmt.Errorf("%w: read body: %v", cluster.ErrShardComputation, err))
		return
	}
	req, err := cluster.DecodeShardRequest(body)
	if err != nil {
		w.fail(rw, err)
		return
	}

	neighbors, err := w.Compute(r.Context(), req)
	if err != nil {
		w.log.Warn("shard computation failed", "title", req.MovieTitle,
			"index", req.Index, "length", req.Length, "error", err)
		w.fail(rw, err)
		return
	}

	w.served.Add(1)
	w.log.Debug("shard computed", "title", req.MovieTitle, "k", req.NumRecs,
		"index", req.Index, "length", req.Length, "results", len(neighbors),
		"elapsed", time.Since(start))
	cluster.WriteJSON(rw, http.StatusOK, neighbors)
}

func (w *Worker) fail(rw http.ResponseWriter, err error) {
	w.failed.Add(1)
	cluster.WriteError(rw, err)
}

// Info is the body of GET /info.
type Info struct {
	Member        string `json:"member"`
	Items         int    `json:"items"`
	Dim           int    `json:"dim"`
	MaxConcurrent int    `json:"max_concurrent"`
	Served        int64  `json:"served"`
	Failed        int64  `json:"failed"`
	InFlight      int64  `json:"in_flight"`
}

// Info returns a snapshot of the worker's state.
func (w *Worker) Info() Info {
	return Info{
		Member:        w.self.String(),
		Items:         w.coll.Len(),
		Dim:           w.coll.Dim(),
		MaxConcurrent: w.maxConcurrent,
		Served:        w.served.Load(),
		Failed:        w.failed.Load(),
		InFlight:      w.inFlight.Load(),
	}
}

func (w *Worker) handleInfo(rw http.ResponseWriter, _ *http.Request) {
	cluster.WriteJSON(rw, http.StatusOK, w.Info())
}
