// Package routing computes deterministic shortest-path routes over a mesh.
package routing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/topology"
)

var (
	// ErrNoRoute is returned when source and destination are not connected.
	ErrNoRoute = errors.New("no route to destination")

	// ErrUnknownPeer is returned when a lookup names a peer not in the mesh.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Route is a loop-free path from Source to Destination.
type Route struct {
	// Path lists every peer from source to destination inclusive.
	Path []identity.PeerID
}

// Source returns the first peer of the path.
func (r *Route) Source() identity.PeerID {
	return r.Path[0]
}

// Destination returns the last peer of the path.
func (r *Route) Destination() identity.PeerID {
	return r.Path[len(r.Path)-1]
}

// Hops returns the number of edges on the path.
func (r *Route) Hops() int {
	return len(r.Path) - 1
}

// NextHop returns the peer after at on the path.
func (r *Route) NextHop(at identity.PeerID) (identity.PeerID, bool) {
	for i := 0; i+1 < len(r.Path); i++ {
		if r.Path[i] == at {
			return r.Path[i+1], true
		}
	}
	return identity.ZeroID, false
}

// String returns "A -> B -> C".
func (r *Route) String() string {
	parts := make([]string, len(r.Path))
	for i, id := range r.Path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

// Clone creates a deep copy of the route.
func (r *Route) Clone() *Route {
	return &Route{Path: slices.Clone(r.Path)}
}

type routeKey struct {
	src, dst identity.PeerID
}

// Table caches shortest paths over an immutable mesh. Because the mesh never
// changes, a cached route stays valid for the lifetime of the table.
type Table struct {
	mu sync.RWMutex

	mesh   *topology.Mesh
	routes map[routeKey]*Route
	// unreachable remembers failed lookups so disconnected pairs are not re-searched
	unreachable map[routeKey]struct{}
}

// NewTable creates a routing table for the mesh.
func NewTable(mesh *topology.Mesh) *Table {
	return &Table{
		mesh:        mesh,
		routes:      make(map[routeKey]*Route),
		unreachable: make(map[routeKey]struct{}),
	}
}

// Lookup returns the shortest route from src to dst. Ties are broken by
// visiting neighbors in peer order, so the same mesh always yields the same
// route. The returned route is a copy.
func (t *Table) Lookup(src, dst identity.PeerID) (*Route, error) {
	if !t.mesh.Has(src) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, src)
	}
	if !t.mesh.Has(dst) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, dst)
	}

	key := routeKey{src, dst}

	t.mu.RLock()
	if r, ok := t.routes[key]; ok {
		t.mu.RUnlock()
		return r.Clone(), nil
	}
	_, miss := t.unreachable[key]
	t.mu.RUnlock()
	if miss {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, src, dst)
	}

	path := ShortestPath(t.mesh, src, dst)

	t.mu.Lock()
	defer t.mu.Unlock()

	if path == nil {
		t.unreachable[key] = struct{}{}
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, src, dst)
	}
	r := &Route{Path: path}
	t.routes[key] = r
	return r.Clone(), nil
}

// Size returns the number of cached routes.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// GetAllRoutes returns all cached routes ordered by source then destination.
func (t *Table) GetAllRoutes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]*Route, 0, len(t.routes))
	for _, r := range t.routes {
		all = append(all, r.Clone())
	}
	slices.SortFunc(all, func(a, b *Route) int {
		if c := identity.Compare(a.Source(), b.Source()); c != 0 {
			return c
		}
		return identity.Compare(a.Destination(), b.Destination())
	})
	return all
}

// Clear drops every cached route.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = make(map[routeKey]*Route)
	t.unreachable = make(map[routeKey]struct{})
}

// ShortestPath runs a breadth-first search from src to dst and returns the
// path including both endpoints, or nil when dst is unreachable. A peer's
// parent is fixed the first time it is discovered and neighbors are visited
// in ascending order, which makes the result stable.
func ShortestPath(mesh *topology.Mesh, src, dst identity.PeerID) []identity.PeerID {
	if !mesh.Has(src) || !mesh.Has(dst) {
		return nil
	}
	if src == dst {
		return []identity.PeerID{src}
	}

	parent := map[identity.PeerID]identity.PeerID{src: src}
	queue := []identity.PeerID{src}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, n := range mesh.Neighbors(cur) {
			if _, seen := parent[n]; seen {
				continue
			}
			parent[n] = cur
			if n == dst {
				return unwind(parent, src, dst)
			}
			queue = append(queue, n)
		}
	}
	return nil
}

func unwind(parent map[identity.PeerID]identity.PeerID, src, dst identity.PeerID) []identity.PeerID {
	var path []identity.PeerID
	for at := dst; ; at = parent[at] {
		path = append(path, at)
		if at == src {
			break
		}
	}
	slices.Reverse(path)
	return path
}
