// Package identity provides peer and packet identifiers for the simulated mesh.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPeerID is returned when a peer identifier is malformed.
	ErrInvalidPeerID = errors.New("invalid peer ID: expected upper-case letters")

	// ErrInvalidPacketID is returned when a packet identifier is malformed.
	ErrInvalidPacketID = errors.New("invalid packet ID: expected SOURCE#SEQ")

	// ZeroID represents an unset peer ID.
	ZeroID = PeerID("")
)

// PeerID identifies a peer in the mesh.
// IDs are spreadsheet-style column names: A..Z, AA..AZ, BA.. and so on,
// so any number of peers can be named and ordering follows creation order.
type PeerID string

// ParsePeerID validates and returns a PeerID.
func ParsePeerID(s string) (PeerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroID, fmt.Errorf("%w: empty", ErrInvalidPeerID)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ZeroID, fmt.Errorf("%w: %q", ErrInvalidPeerID, s)
		}
	}
	return PeerID(s), nil
}

// MustParsePeerID is ParsePeerID that panics on error (tests and fixtures).
func MustParsePeerID(s string) PeerID {
	id, err := ParsePeerID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Nth returns the PeerID at zero-based position n.
func Nth(n int) PeerID {
	if n < 0 {
		return ZeroID
	}
	var buf []byte
	for n >= 0 {
		buf = append([]byte{byte('A' + n%26)}, buf...)
		n = n/26 - 1
	}
	return PeerID(buf)
}

// Letters returns the first n peer IDs in order.
func Letters(n int) []PeerID {
	if n <= 0 {
		return nil
	}
	ids := make([]PeerID, n)
	for i := range ids {
		ids[i] = Nth(i)
	}
	return ids
}

// String returns the ID text.
func (id PeerID) String() string {
	return string(id)
}

// IsZero returns true if the ID is unset.
func (id PeerID) IsZero() bool {
	return id == ZeroID
}

// Less orders IDs by length, then lexically, which matches Nth order.
func (id PeerID) Less(other PeerID) bool {
	if len(id) != len(other) {
		return len(id) < len(other)
	}
	return id < other
}

// Compare returns -1, 0 or +1 following Less.
func Compare(a, b PeerID) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// PacketID identifies a message by its source and per-source sequence number.
type PacketID struct {
	Source   PeerID
	Sequence uint64
}

// String returns the SOURCE#SEQ form.
func (p PacketID) String() string {
	return p.Source.String() + "#" + strconv.FormatUint(p.Sequence, 10)
}

// IsZero returns true if the packet ID is unset.
func (p PacketID) IsZero() bool {
	return p.Source.IsZero()
}

// ParsePacketID parses the SOURCE#SEQ form.
func ParsePacketID(s string) (PacketID, error) {
	src, seq, ok := strings.Cut(s, "#")
	if !ok {
		return PacketID{}, fmt.Errorf("%w: %q", ErrInvalidPacketID, s)
	}
	peer, err := ParsePeerID(src)
	if err != nil {
		return PacketID{}, fmt.Errorf("%w: %v", ErrInvalidPacketID, err)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return PacketID{}, fmt.Errorf("%w: %v", ErrInvalidPacketID, err)
	}
	return PacketID{Source: peer, Sequence: n}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p PacketID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PacketID) UnmarshalText(text []byte) error {
	parsed, err := ParsePacketID(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
