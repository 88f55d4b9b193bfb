package invite

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/postalsys/muti-sim/internal/crypto"
	"github.com/postalsys/muti-sim/internal/identity"
)

// Member is a peer admitted to an interface.
type Member struct {
	Peer identity.PeerID `json:"peer"`
	// KeyFingerprint identifies the interface key the peer holds.
	KeyFingerprint string `json:"key_fingerprint"`
	JoinedTick     uint64 `json:"joined_tick"`
}

// Membership maps interface IDs to their members.
type Membership struct {
	mu         sync.RWMutex
	interfaces map[string]map[identity.PeerID]Member
}

// NewMembership creates an empty membership table.
func NewMembership() *Membership {
	return &Membership{interfaces: make(map[string]map[identity.PeerID]Member)}
}

// Fingerprint returns a short hex digest of an interface key.
func Fingerprint(key [crypto.KeySize]byte) string {
	sum := sha256.Sum256(key[:])
	return hex.EncodeToString(sum[:8])
}

// Add admits peer to iface. Re-adding an existing member keeps the
// original join tick and reports false.
func (m *Membership) Add(iface string, member Member) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.interfaces[iface]
	if !ok {
		members = make(map[identity.PeerID]Member)
		m.interfaces[iface] = members
	}
	if _, exists := members[member.Peer]; exists {
		return false
	}
	members[member.Peer] = member
	return true
}

// IsMember reports whether peer belongs to iface.
func (m *Membership) IsMember(iface string, peer identity.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.interfaces[iface][peer]
	return ok
}

// Members returns the members of iface in peer order.
func (m *Membership) Members(iface string) []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Member, 0, len(m.interfaces[iface]))
	for _, mem := range m.interfaces[iface] {
		out = append(out, mem)
	}
	slices.SortFunc(out, func(a, b Member) int {
		return identity.Compare(a.Peer, b.Peer)
	})
	return out
}

// Interfaces returns all known interface IDs, sorted.
func (m *Membership) Interfaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.interfaces))
	for iface := range m.interfaces {
		out = append(out, iface)
	}
	slices.Sort(out)
	return out
}
