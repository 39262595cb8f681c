package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/knnshard/internal/cluster"
)

func member(port int) cluster.Member {
	return cluster.Member{Host: "127.0.0.1", Port: port}
}

// TestMemoryStore tests the in-memory member store.
func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("new group is empty", func(t *testing.T) {
		store := NewMemoryStore(0)
		members, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.NotNil(t, members)
		assert.Empty(t, members)
	})

	t.Run("unknown group is a lookup failure", func(t *testing.T) {
		store := NewMemoryStore(0)
		_, err := store.List(ctx, 7)
		assert.ErrorIs(t, err, cluster.ErrLookup)
		_, err = store.Join(ctx, 7, member(5001))
		assert.ErrorIs(t, err, cluster.ErrLookup)
		assert.ErrorIs(t, store.Evict(ctx, 7, member(5001)), cluster.ErrLookup)
	})

	t.Run("join returns current members", func(t *testing.T) {
		store := NewMemoryStore(0)
		members, err := store.Join(ctx, 0, member(5001))
		require.NoError(t, err)
		assert.Equal(t, []cluster.Member{member(5001)}, members)

		members, err = store.Join(ctx, 0, member(5002))
		require.NoError(t, err)
		assert.Equal(t, []cluster.Member{member(5001), member(5002)}, members)
	})

	t.Run("join is idempotent and order stable", func(t *testing.T) {
		store := NewMemoryStore(0)
		for _, p := range []int{5003, 5001, 5002} {
			_, err := store.Join(ctx, 0, member(p))
			require.NoError(t, err)
		}
		before, err := store.List(ctx, 0)
		require.NoError(t, err)

		after, err := store.Join(ctx, 0, member(5001))
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Len(t, after, 3)
		assert.Equal(t, []cluster.Member{member(5001), member(5002), member(5003)}, after)
	})

	t.Run("create group is idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.CreateGroup(ctx, 3))
		_, err := store.Join(ctx, 3, member(5001))
		require.NoError(t, err)
		require.NoError(t, store.CreateGroup(ctx, 3))
		members, err := store.List(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("evict", func(t *testing.T) {
		store := NewMemoryStore(0)
		_, _ = store.Join(ctx, 0, member(5001))
		_, _ = store.Join(ctx, 0, member(5002))
		require.NoError(t, store.Evict(ctx, 0, member(5001)))
		require.NoError(t, store.Evict(ctx, 0, member(5009)))
		members, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []cluster.Member{member(5002)}, members)
	})
}

// TestMemoryStoreConcurrentJoins checks that simultaneous joins are never lost.
func TestMemoryStoreConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	const n = 64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			<-start
			_, err := store.Join(ctx, 0, member(port))
			assert.NoError(t, err)
			// Re-join from a second goroutine racing the first.
			_, err = store.Join(ctx, 0, member(port))
			assert.NoError(t, err)
		}(6000 + i)
	}
	close(start)
	wg.Wait()

	members, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, members, n)
	for i, m := range members {
		assert.Equal(t, member(6000+i), m, fmt.Sprintf("position %d", i))
	}
}

func TestParseMemberNodes(t *testing.T) {
	nodes := []string{"b-host:5001", "127.0.0.1:5002", "not-a-member", "127.0.0.1:5001", "[::1]:7000"}
	got := parseMemberNodes(nodes)
	assert.Equal(t, []cluster.Member{
		{Host: "127.0.0.1", Port: 5001},
		{Host: "127.0.0.1", Port: 5002},
		{Host: "::1", Port: 7000},
		{Host: "b-host", Port: 5001},
	}, got)

	for _, m := range got {
		assert.Equal(t, []cluster.Member{m}, parseMemberNodes([]string{memberNode(m)}))
	}
}
