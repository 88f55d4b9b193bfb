// Package topology builds the immutable peer graphs the simulator runs on.
package topology

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/postalsys/muti-sim/internal/identity"
)

var (
	// ErrInvalidPeerCount is returned when a builder is asked for fewer than one peer.
	ErrInvalidPeerCount = errors.New("peer count must be at least 1")

	// ErrInvalidDensity is returned when a random density is outside [0,1].
	ErrInvalidDensity = errors.New("density must be between 0 and 1")

	// ErrSelfLoop is returned when an edge joins a peer to itself.
	ErrSelfLoop = errors.New("edge endpoints must be distinct")

	// ErrNoEdges is returned by FromEdges when the list is empty.
	ErrNoEdges = errors.New("edge list is empty")
)

// Edge is an undirected connection. A is always ordered before B.
type Edge struct {
	A identity.PeerID
	B identity.PeerID
}

// NewEdge returns the normalized edge between a and b.
func NewEdge(a, b identity.PeerID) Edge {
	if b.Less(a) {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// String returns "A-B".
func (e Edge) String() string {
	return e.A.String() + "-" + e.B.String()
}

// Mesh is an undirected graph of peers. It is never mutated after a
// constructor returns; simulations rebuild rather than edit it.
type Mesh struct {
	peers     []identity.PeerID
	adjacency map[identity.PeerID][]identity.PeerID
	edges     []Edge
}

// builder accumulates peers and edges before freezing them into a Mesh.
type builder struct {
	peers     map[identity.PeerID]struct{}
	adjacency map[identity.PeerID]map[identity.PeerID]struct{}
}

func newBuilder() *builder {
	return &builder{
		peers:     make(map[identity.PeerID]struct{}),
		adjacency: make(map[identity.PeerID]map[identity.PeerID]struct{}),
	}
}

func (b *builder) addPeer(id identity.PeerID) {
	if _, ok := b.peers[id]; ok {
		return
	}
	b.peers[id] = struct{}{}
	b.adjacency[id] = make(map[identity.PeerID]struct{})
}

func (b *builder) connect(x, y identity.PeerID) error {
	if x == y {
		return fmt.Errorf("%w: %s", ErrSelfLoop, x)
	}
	b.addPeer(x)
	b.addPeer(y)
	b.adjacency[x][y] = struct{}{}
	b.adjacency[y][x] = struct{}{}
	return nil
}

func (b *builder) freeze() *Mesh {
	m := &Mesh{
		peers:     make([]identity.PeerID, 0, len(b.peers)),
		adjacency: make(map[identity.PeerID][]identity.PeerID, len(b.peers)),
	}
	for id := range b.peers {
		m.peers = append(m.peers, id)
	}
	slices.SortFunc(m.peers, identity.Compare)

	for _, id := range m.peers {
		neighbors := make([]identity.PeerID, 0, len(b.adjacency[id]))
		for n := range b.adjacency[id] {
			neighbors = append(neighbors, n)
		}
		slices.SortFunc(neighbors, identity.Compare)
		m.adjacency[id] = neighbors

		for _, n := range neighbors {
			if id.Less(n) {
				m.edges = append(m.edges, Edge{A: id, B: n})
			}
		}
	}
	return m
}

func checkCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPeerCount, n)
	}
	return nil
}

// FullMesh connects every peer to every other peer.
func FullMesh(n int) (*Mesh, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	b := newBuilder()
	ids := identity.Letters(n)
	for _, id := range ids {
		b.addPeer(id)
	}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			_ = b.connect(ids[i], ids[j])
		}
	}
	return b.freeze(), nil
}

// Random samples each possible edge independently with the given density.
// The result may be disconnected; isolated peers are valid inputs.
func Random(n int, density float64, rng *rand.Rand) (*Mesh, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	if !(density >= 0 && density <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDensity, density)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	b := newBuilder()
	ids := identity.Letters(n)
	for _, id := range ids {
		b.addPeer(id)
	}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if rng.Float64() < density {
				_ = b.connect(ids[i], ids[j])
			}
		}
	}
	return b.freeze(), nil
}

// Line connects peers in a chain: A - B - C - ...
func Line(n int) (*Mesh, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	b := newBuilder()
	ids := identity.Letters(n)
	for _, id := range ids {
		b.addPeer(id)
	}
	for i := 0; i+1 < len(ids); i++ {
		_ = b.connect(ids[i], ids[i+1])
	}
	return b.freeze(), nil
}

// Ring is a Line whose last peer is joined back to the first.
func Ring(n int) (*Mesh, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	b := newBuilder()
	ids := identity.Letters(n)
	for _, id := range ids {
		b.addPeer(id)
	}
	if n > 1 {
		for i := range ids {
			next := ids[(i+1)%len(ids)]
			if next != ids[i] {
				_ = b.connect(ids[i], next)
			}
		}
	}
	return b.freeze(), nil
}

// Star connects the first peer to all others.
func Star(n int) (*Mesh, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	b := newBuilder()
	ids := identity.Letters(n)
	for _, id := range ids {
		b.addPeer(id)
	}
	for _, id := range ids[1:] {
		_ = b.connect(ids[0], id)
	}
	return b.freeze(), nil
}

// FromEdges builds a mesh from an explicit edge list. Peers are implied by
// the edges they appear in.
func FromEdges(edges []Edge) (*Mesh, error) {
	if len(edges) == 0 {
		return nil, ErrNoEdges
	}
	b := newBuilder()
	for i, e := range edges {
		if e.A.IsZero() || e.B.IsZero() {
			return nil, fmt.Errorf("edges[%d]: %w", i, identity.ErrInvalidPeerID)
		}
		if err := b.connect(e.A, e.B); err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
	}
	return b.freeze(), nil
}

// ParseEdges parses "A-B" pairs into edges.
func ParseEdges(pairs []string) ([]Edge, error) {
	edges := make([]Edge, 0, len(pairs))
	for i, p := range pairs {
		left, right, ok := strings.Cut(p, "-")
		if !ok {
			return nil, fmt.Errorf("edges[%d]: expected A-B, got %q", i, p)
		}
		a, err := identity.ParsePeerID(left)
		if err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		b, err := identity.ParsePeerID(right)
		if err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		edges = append(edges, NewEdge(a, b))
	}
	return edges, nil
}

// Peers returns all peer IDs in order. The slice is a copy.
func (m *Mesh) Peers() []identity.PeerID {
	return slices.Clone(m.peers)
}

// Edges returns all edges sorted by (A, B). The slice is a copy.
func (m *Mesh) Edges() []Edge {
	return slices.Clone(m.edges)
}

// PeerCount returns the number of peers.
func (m *Mesh) PeerCount() int {
	return len(m.peers)
}

// EdgeCount returns the number of undirected edges.
func (m *Mesh) EdgeCount() int {
	return len(m.edges)
}

// Has reports whether the peer exists.
func (m *Mesh) Has(id identity.PeerID) bool {
	_, ok := m.adjacency[id]
	return ok
}

// Neighbors returns the sorted neighbors of a peer, or nil if unknown.
func (m *Mesh) Neighbors(id identity.PeerID) []identity.PeerID {
	return slices.Clone(m.adjacency[id])
}

// AreConnected reports whether a and b share an edge.
func (m *Mesh) AreConnected(a, b identity.PeerID) bool {
	_, found := slices.BinarySearchFunc(m.adjacency[a], b, identity.Compare)
	return found
}

// MutualPeers returns peers adjacent to both a and b.
func (m *Mesh) MutualPeers(a, b identity.PeerID) []identity.PeerID {
	var mutual []identity.PeerID
	for _, n := range m.adjacency[a] {
		if m.AreConnected(b, n) {
			mutual = append(mutual, n)
		}
	}
	return mutual
}

// Visualize returns an ASCII listing of the adjacency.
func (m *Mesh) Visualize() string {
	var sb strings.Builder
	sb.WriteString("Mesh Topology:\n")
	fmt.Fprintf(&sb, "  Peers: %d\n", m.PeerCount())
	fmt.Fprintf(&sb, "  Edges: %d\n\n", m.EdgeCount())
	for _, id := range m.peers {
		names := make([]string, len(m.adjacency[id]))
		for i, n := range m.adjacency[id] {
			names[i] = n.String()
		}
		fmt.Fprintf(&sb, "  %s -> [%s]\n", id, strings.Join(names, ", "))
	}
	return sb.String()
}
