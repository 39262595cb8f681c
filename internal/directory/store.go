package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zhangyunhao116/skipmap"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Store holds the member set of every group.
// All implementations must be safe for concurrent use; Join in particular
// must never lose a registration made concurrently with another.
type Store interface {
	// CreateGroup makes an empty group. Creating an existing group is a no-op.
	CreateGroup(ctx context.Context, group int) error

	// Join adds m to the group and returns the resulting member list.
	// Joining an existing member leaves the set unchanged.
	// Returns an error wrapping cluster.ErrLookup for unknown groups.
	Join(ctx context.Context, group int, m cluster.Member) ([]cluster.Member, error)

	// List returns the group's members ordered by (host, port).
	// Returns an error wrapping cluster.ErrLookup for unknown groups.
	List(ctx context.Context, group int) ([]cluster.Member, error)

	// Evict removes m from the group. Evicting an absent member is a no-op.
	Evict(ctx context.Context, group int, m cluster.Member) error

	// Close releases backend resources.
	Close() error
}

// memberSet is an ordered concurrent set of members, valued by join time.
type memberSet = skipmap.FuncMap[cluster.Member, time.Time]

func newMemberSet() *memberSet {
	return skipmap.NewFunc[cluster.Member, time.Time](func(a, b cluster.Member) bool {
		return a.Compare(b) < 0
	})
}

// MemoryStore keeps groups in process memory. State does not survive a
// restart.
type MemoryStore struct {
	groups map[int]*memberSet // group id -> members
	mu     sync.RWMutex       // protects groups, not the sets themselves
}

// NewMemoryStore creates a store with the given groups already present.
func NewMemoryStore(groups ...int) *MemoryStore {
	s := &MemoryStore{groups: make(map[int]*memberSet)}
	for _, g := range groups {
		s.groups[g] = newMemberSet()
	}
	return s
}

func (s *MemoryStore) CreateGroup(_ context.Context, group int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = newMemberSet()
	}
	return nil
}

func (s *MemoryStore) group(group int) (*memberSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group %d", cluster.ErrLookup, group)
	}
	return set, nil
}

func (s *MemoryStore) Join(ctx context.Context, group int, m cluster.Member) ([]cluster.Member, error) {
	set, err := s.group(group)
	if err != nil {
		return nil, err
	}
	// LoadOrStore keeps the first join time for a re-joining member.
	set.LoadOrStore(m, time.Now())
	return s.List(ctx, group)
}

func (s *MemoryStore) List(_ context.Context, group int) ([]cluster.Member, error) {
	set, err := s.group(group)
	if err != nil {
		return nil, err
	}
	members := make([]cluster.Member, 0, set.Len())
	set.Range(func(m cluster.Member, _ time.Time) bool {
		members = append(members, m)
		return true
	})
	return members, nil
}

func (s *MemoryStore) Evict(_ context.Context, group int, m cluster.Member) error {
	set, err := s.group(group)
	if err != nil {
		return err
	}
	set.Delete(m)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
