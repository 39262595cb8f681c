package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"golang.org/x/exp/slices"

	"github.com/dreamware/knnshard/internal/cluster"
)

// ZKStore keeps groups in ZooKeeper. Members are ephemeral znodes
//
//	<root>/groups/<group>/<host:port>
//
// so they vanish with the directory's session and nothing outlives it.
type ZKStore struct {
	conn *zk.Conn
	root string
}

// NewZKStore connects to servers (e.g. ["zk1:2181", "zk2:2181"]) and waits
// for a session before returning.
func NewZKStore(servers []string, root string, sessionTimeout time.Duration) (*ZKStore, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	s := &ZKStore{conn: conn, root: strings.TrimRight(root, "/")}
	if err := s.waitConnected(2 * sessionTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ZKStore) Close() error {
	s.conn.Close()
	return nil
}

func (s *ZKStore) groupPath(group int) string {
	return s.root + "/groups/" + strconv.Itoa(group)
}

func (s *ZKStore) ensurePath(path string) error {
	cur := ""
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := s.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = s.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (s *ZKStore) CreateGroup(_ context.Context, group int) error {
	if err := s.ensurePath(s.groupPath(group)); err != nil {
		return fmt.Errorf("zk create group %d: %w", group, err)
	}
	return nil
}

func (s *ZKStore) Join(ctx context.Context, group int, m cluster.Member) ([]cluster.Member, error) {
	path := s.groupPath(group) + "/" + memberNode(m)
	_, err := s.conn.Create(path, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	switch {
	case err == nil, errors.Is(err, zk.ErrNodeExists):
	case errors.Is(err, zk.ErrNoNode):
		return nil, fmt.Errorf("%w: unknown group %d", cluster.ErrLookup, group)
	default:
		return nil, fmt.Errorf("zk join %s: %w", path, err)
	}
	return s.List(ctx, group)
}

func (s *ZKStore) List(_ context.Context, group int) ([]cluster.Member, error) {
	children, _, err := s.conn.Children(s.groupPath(group))
	if errors.Is(err, zk.ErrNoNode) {
		return nil, fmt.Errorf("%w: unknown group %d", cluster.ErrLookup, group)
	}
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	return parseMemberNodes(children), nil
}

func (s *ZKStore) Evict(_ context.Context, group int, m cluster.Member) error {
	err := s.conn.Delete(s.groupPath(group)+"/"+memberNode(m), -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("zk evict %s: %w", m, err)
	}
	return nil
}

func (s *ZKStore) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := s.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// memberNode is the znode name of a member.
func memberNode(m cluster.Member) string {
	return m.String()
}

// parseMemberNodes decodes znode names, skipping foreign entries, and orders
// the result the same way MemoryStore does.
func parseMemberNodes(children []string) []cluster.Member {
	members := make([]cluster.Member, 0, len(children))
	for _, c := range children {
		m, err := cluster.ParseMember(c)
		if err != nil {
			slog.Warn("skipping unparsable member znode", "node", c, "error", err)
			continue
		}
		members = append(members, m)
	}
	slices.SortFunc(members, cluster.Member.Compare)
	return members
}
