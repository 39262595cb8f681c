package directory

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dreamware/knnshard/internal/cluster"
)

// EntityPath is the resource both join and list are served on.
const EntityPath = cluster.EntityPath

// Handler returns the directory's HTTP API:
//
//	PUT /parallelism-entity   join
//	GET /parallelism-entity   list (?entity=N, default 0)
//	GET /health
func (d *Directory) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		cluster.WriteJSON(w, http.StatusOK, cluster.NewOKResponse())
	})
	r.Put(EntityPath, d.handleJoin)
	r.Get(EntityPath, d.handleList)
	return r
}

func (d *Directory) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req cluster.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cluster.WriteError(w, fmt.Errorf("%w: bad json: %v", cluster.ErrInvalidArgument, err))
		return
	}
	members, err := d.Join(r.Context(), req.Entity, req.Member())
	if err != nil {
		d.log.Warn("join rejected", "group", req.Entity, "member", req.Member().String(), "error", err)
		cluster.WriteError(w, err)
		return
	}
	cluster.WriteJSON(w, http.StatusOK, members)
}

func (d *Directory) handleList(w http.ResponseWriter, r *http.Request) {
	group := DefaultGroup
	if v := r.URL.Query().Get("entity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			cluster.WriteError(w, fmt.Errorf("%w: entity %q", cluster.ErrInvalidArgument, v))
			return
		}
		group = n
	}
	members, err := d.List(r.Context(), group)
	if err != nil {
		cluster.WriteError(w, err)
		return
	}
	cluster.WriteJSON(w, http.StatusOK, members)
}
