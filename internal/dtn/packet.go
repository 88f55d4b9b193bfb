package dtn

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/postalsys/muti-sim/internal/identity"
)

// ErrTerminal is returned when a resolved packet is asked to change state.
var ErrTerminal = errors.New("packet already resolved")

// Status is the lifecycle stage of a packet.
type Status uint8

const (
	// StatusQueued packets wait in the sender's outbox.
	StatusQueued Status = iota
	// StatusInFlight packets have been admitted and are moving along their route.
	StatusInFlight
	// StatusDelivered packets reached their destination.
	StatusDelivered
	// StatusDropped packets were discarded.
	StatusDropped
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "QUEUED"
	case StatusInFlight:
		return "IN_FLIGHT"
	case StatusDelivered:
		return "DELIVERED"
	case StatusDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Packet is a message travelling through the mesh.
type Packet struct {
	ID          identity.PacketID `json:"id"`
	Source      identity.PeerID   `json:"source"`
	Destination identity.PeerID   `json:"destination"`
	Size        int               `json:"size"`
	CreatedTick uint64            `json:"created_tick"`
	Deadline    uint64            `json:"deadline"`

	// Holder is the peer currently storing the packet.
	Holder identity.PeerID `json:"holder"`
	// Path is the realised path so far, starting at Source.
	Path []identity.PeerID `json:"path"`
	// Remaining lists the peers still to visit, ending at Destination.
	Remaining []identity.PeerID `json:"remaining,omitempty"`

	// Retries counts ticks spent waiting for the source to come online.
	Retries int `json:"retries"`

	Status       Status     `json:"status"`
	Reason       DropReason `json:"reason,omitempty"`
	ResolvedTick uint64     `json:"resolved_tick,omitempty"`
}

// NewPacket creates a queued packet held by its source. A timeout of zero
// means the packet never expires.
func NewPacket(id identity.PacketID, dst identity.PeerID, size int, created, timeout uint64) *Packet {
	deadline := uint64(math.MaxUint64)
	if timeout > 0 && timeout <= math.MaxUint64-created {
		deadline = created + timeout
	}
	return &Packet{
		ID:          id,
		Source:      id.Source,
		Destination: dst,
		Size:        size,
		CreatedTick: created,
		Deadline:    deadline,
		Holder:      id.Source,
		Path:        []identity.PeerID{id.Source},
		Status:      StatusQueued,
	}
}

// Terminal reports whether the packet has been delivered or dropped.
func (p *Packet) Terminal() bool {
	return p.Status == StatusDelivered || p.Status == StatusDropped
}

// Expired reports whether the deadline has been reached at tick.
func (p *Packet) Expired(tick uint64) bool {
	return tick >= p.Deadline
}

// Hops returns the number of edges traversed so far.
func (p *Packet) Hops() int {
	return len(p.Path) - 1
}

// Latency returns the ticks between creation and resolution.
func (p *Packet) Latency() uint64 {
	if !p.Terminal() {
		return 0
	}
	return p.ResolvedTick - p.CreatedTick
}

// Route sets the hops still to travel and marks the packet in flight.
// route must start at the current holder.
func (p *Packet) Route(route []identity.PeerID) error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, p.ID)
	}
	if len(route) == 0 || route[0] != p.Holder {
		return fmt.Errorf("route for %s must start at holder %s", p.ID, p.Holder)
	}
	p.Remaining = slices.Clone(route[1:])
	p.Status = StatusInFlight
	return nil
}

// NextHop returns the next peer on the route.
func (p *Packet) NextHop() (identity.PeerID, bool) {
	if len(p.Remaining) == 0 {
		return identity.ZeroID, false
	}
	return p.Remaining[0], true
}

// Advance moves the packet one hop forward and returns the previous holder.
func (p *Packet) Advance() (identity.PeerID, error) {
	if p.Terminal() {
		return identity.ZeroID, fmt.Errorf("%w: %s", ErrTerminal, p.ID)
	}
	next, ok := p.NextHop()
	if !ok {
		return identity.ZeroID, fmt.Errorf("packet %s has no next hop", p.ID)
	}
	prev := p.Holder
	p.Holder = next
	p.Path = append(p.Path, next)
	p.Remaining = p.Remaining[1:]
	return prev, nil
}

// AtDestination reports whether the holder is the destination.
func (p *Packet) AtDestination() bool {
	return p.Holder == p.Destination
}

// Deliver resolves the packet as delivered.
func (p *Packet) Deliver(tick uint64) error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, p.ID)
	}
	p.Status = StatusDelivered
	p.ResolvedTick = tick
	return nil
}

// Drop resolves the packet as dropped.
func (p *Packet) Drop(reason DropReason, tick uint64) error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, p.ID)
	}
	p.Status = StatusDropped
	p.Reason = reason
	p.ResolvedTick = tick
	p.Remaining = nil
	return nil
}

// Clone creates a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Path = slices.Clone(p.Path)
	c.Remaining = slices.Clone(p.Remaining)
	return &c
}
