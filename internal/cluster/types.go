package cluster

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Member is a worker endpoint. Identity is the (Host, Port) pair.
type Member struct {
	Host string
	Port int
}

// ParseMember parses "host:port".
func ParseMember(s string) (Member, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Member{}, fmt.Errorf("%w: member %q: %v", ErrInvalidArgument, s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Member{}, fmt.Errorf("%w: member %q: bad port", ErrInvalidArgument, s)
	}
	m := Member{Host: host, Port: port}
	if err := m.Validate(); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Validate rejects members that cannot be dialed.
func (m Member) Validate() error {
	if m.Host == "" {
		return fmt.Errorf("%w: member host is empty", ErrInvalidArgument)
	}
	if strings.ContainsRune(m.Host, '/') {
		return fmt.Errorf("%w: member host %q contains '/'", ErrInvalidArgument, m.Host)
	}
	if m.Port <= 0 || m.Port > 65535 {
		return fmt.Errorf("%w: member port %d out of range", ErrInvalidArgument, m.Port)
	}
	return nil
}

func (m Member) String() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// URL is the base URL requests to this member are sent to.
func (m Member) URL() string {
	return "http://" + m.String()
}

// Compare orders members by host, then port.
func (m Member) Compare(o Member) int {
	if c := cmp.Compare(m.Host, o.Host); c != 0 {
		return c
	}
	return cmp.Compare(m.Port, o.Port)
}

// MarshalJSON encodes the member as ["host", port].
func (m Member) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Host, m.Port})
}

// UnmarshalJSON decodes ["host", port].
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("member: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("member: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &m.Host); err != nil {
		return fmt.Errorf("member host: %w", err)
	}
	if err := json.Unmarshal(raw[1], &m.Port); err != nil {
		return fmt.Errorf("member port: %w", err)
	}
	return nil
}

// EntityPath is the directory resource join (PUT) and list (GET) are served on.
const EntityPath = "/parallelism-entity"

// JoinRequest is the body of a directory join call.
type JoinRequest struct {
	Address string `json:"address"`
	Entity  int    `json:"entity"`
	Port    int    `json:"port"`
}

// Member returns the endpoint being registered.
func (r JoinRequest) Member() Member {
	return Member{Host: r.Address, Port: r.Port}
}

// KNNPath is the worker resource shard computations are posted to.
const KNNPath = "/knn"

// ShardRequest is the body of a shard-compute call.
type ShardRequest struct {
	MovieTitle string `json:"movie_title"`
	NumRecs    int    `json:"num_recs"`
	Index      int    `json:"index"`
	Length     int    `json:"length"`
}

// DecodeShardRequest parses a shard-compute body. Numeric fields may be JSON
// numbers or numeric strings; anything missing or non-numeric is an
// ErrShardComputation.
func DecodeShardRequest(data []byte) (ShardRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ShardRequest{}, fmt.Errorf("%w: %v", ErrShardComputation, err)
	}

	var req ShardRequest
	title, ok := raw["movie_title"]
	if !ok {
		return ShardRequest{}, fmt.Errorf("%w: missing field movie_title", ErrShardComputation)
	}
	if err := json.Unmarshal(title, &req.MovieTitle); err != nil {
		return ShardRequest{}, fmt.Errorf("%w: movie_title: %v", ErrShardComputation, err)
	}

	fields := []struct {
		dst  *int
		name string
	}{
		{&req.NumRecs, "num_recs"},
		{&req.Index, "index"},
		{&req.Length, "length"},
	}
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok {
			return ShardRequest{}, fmt.Errorf("%w: missing field %s", ErrShardComputation, f.name)
		}
		n, err := decodeInt(v)
		if err != nil {
			return ShardRequest{}, fmt.Errorf("%w: %s: %v", ErrShardComputation, f.name, err)
		}
		*f.dst = n
	}
	return req, nil
}

func decodeInt(v json.RawMessage) (int, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		return strconv.Atoi(s)
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, fmt.Errorf("not a number: %s", v)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("not an integer: %s", v)
	}
	return int(i), nil
}

// Neighbor is one ranked candidate item.
type Neighbor struct {
	Label    string
	ID       int
	Distance float64
}

// MarshalJSON encodes the neighbor as ["id", "label", "distance"]. The
// distance keeps full float64 precision.
func (n Neighbor) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{
		strconv.Itoa(n.ID),
		n.Label,
		strconv.FormatFloat(n.Distance, 'f', -1, 64),
	})
}

// UnmarshalJSON decodes ["id", "label", "distance"].
func (n *Neighbor) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("neighbor: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("neighbor: want 3 elements, got %d", len(raw))
	}
	id, err := strconv.Atoi(raw[0])
	if err != nil {
		return fmt.Errorf("neighbor id: %w", err)
	}
	dist, err := strconv.ParseFloat(raw[2], 64)
	if err != nil {
		return fmt.Errorf("neighbor distance: %w", err)
	}
	n.ID, n.Label, n.Distance = id, raw[1], dist
	return nil
}
