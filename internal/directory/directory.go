package directory

import (
	"context"
	"log/slog"

	"github.com/dreamware/knnshard/internal/cluster"
)

// DefaultGroup is the only group a stock deployment creates.
const DefaultGroup = 0

// Directory answers join and list calls for a Store. Its own advertised
// endpoint is the bootstrap member: it never appears in a response, so it is
// never dispatched a shard.
type Directory struct {
	store Store
	log   *slog.Logger
	self  cluster.Member
}

// New wraps store behind the join and list operations.
//
// Parameters:
//   - store: Membership backend, a MemoryStore or a ZKStore
//   - self: The directory's own advertised endpoint, filtered from every answer
//   - log: Logger for rejected joins; nil uses slog.Default()
//
// Returns:
//   - *Directory: Ready to serve through Handler()
//
// Example:
//
//	store := directory.NewMemoryStore(directory.DefaultGroup)
//	dir := directory.New(store, cluster.Member{Host: "127.0.0.1", Port: 5000}, log)
//	http.ListenAndServe(":5000", dir.Handler())
func New(store Store, self cluster.Member, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{store: store, self: self, log: log.With("component", "directory")}
}

// Join registers m in group and returns the filtered member list.
func (d *Directory) Join(ctx context.Context, group int, m cluster.Member) ([]cluster.Member, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	members, err := d.store.Join(ctx, group, m)
	if err != nil {
		return nil, err
	}
	d.log.Info("member joined", "group", group, "member", m.String(), "members", len(members))
	return d.filter(members), nil
}

// List returns the filtered member list of group.
func (d *Directory) List(ctx context.Context, group int) ([]cluster.Member, error) {
	members, err := d.store.List(ctx, group)
	if err != nil {
		return nil, err
	}
	return d.filter(members), nil
}

// Evict drops m from group.
func (d *Directory) Evict(ctx context.Context, group int, m cluster.Member) error {
	if err := d.store.Evict(ctx, group, m); err != nil {
		return err
	}
	d.log.Warn("member evicted", "group", group, "member", m.String())
	return nil
}

func (d *Directory) filter(members []cluster.Member) []cluster.Member {
	out := make([]cluster.Member, 0, len(members))
	for _, m := range members {
		if m != d.self {
			out = append(out, m)
		}
	}
	return out
}
