package coordinator

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Handler serves queries over HTTP:
//
//	GET /recommend?title=<label>&k=<n>
//	GET /members
//	GET /health
func (c *Coordinator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		cluster.WriteJSON(w, http.StatusOK, cluster.NewOKResponse())
	})
	r.Get("/members", c.handleMembers)
	r.Get("/recommend", c.handleRecommend)
	return r
}

func (c *Coordinator) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := q.Get("title")
	if title == "" {
		cluster.WriteError(w, fmt.Errorf("%w: title is required", cluster.ErrInvalidArgument))
		return
	}
	k, err := strconv.Atoi(q.Get("k"))
	if err != nil || k < 1 {
		cluster.WriteError(w, fmt.Errorf("%w: k must be a positive integer, got %q", cluster.ErrInvalidArgument, q.Get("k")))
		return
	}

	res, err := c.Recommend(r.Context(), title, k)
	if err != nil {
		cluster.WriteError(w, err)
		return
	}
	cluster.WriteJSON(w, http.StatusOK, res)
}

func (c *Coordinator) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := c.Discover(r.Context())
	if err != nil {
		cluster.WriteError(w, err)
		return
	}
	cluster.WriteJSON(w, http.StatusOK, members)
}
