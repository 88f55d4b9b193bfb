package dtn

import (
	"errors"
	"fmt"

	"github.com/postalsys/muti-sim/internal/identity"
)

var (
	// ErrBufferFull is returned when a peer already holds MaxMessages packets.
	ErrBufferFull = errors.New("pending buffer full")

	// ErrBufferOverflow is returned when a packet would exceed MaxBytes.
	ErrBufferOverflow = errors.New("pending buffer overflow")
)

// BufferLimits caps what a single peer may hold. Zero disables a cap.
type BufferLimits struct {
	MaxMessages int
	MaxBytes    int
}

type peerBuffer struct {
	sizes map[identity.PacketID]int
	bytes int
}

// Buffers tracks the packets each peer is currently storing.
type Buffers struct {
	limits BufferLimits
	peers  map[identity.PeerID]*peerBuffer
}

// NewBuffers creates per-peer buffers with the given limits.
func NewBuffers(limits BufferLimits) *Buffers {
	return &Buffers{
		limits: limits,
		peers:  make(map[identity.PeerID]*peerBuffer),
	}
}

// getOrCreate returns the buffer for a peer, creating it if necessary.
func (b *Buffers) getOrCreate(peer identity.PeerID) *peerBuffer {
	pb, ok := b.peers[peer]
	if !ok {
		pb = &peerBuffer{sizes: make(map[identity.PacketID]int)}
		b.peers[peer] = pb
	}
	return pb
}

// Check reports whether peer could accept a packet of size bytes without
// storing it. The count cap is checked before the byte cap.
func (b *Buffers) Check(peer identity.PeerID, size int) error {
	pb := b.getOrCreate(peer)
	if b.limits.MaxMessages > 0 && len(pb.sizes) >= b.limits.MaxMessages {
		return fmt.Errorf("%w: %s holds %d", ErrBufferFull, peer, len(pb.sizes))
	}
	if b.limits.MaxBytes > 0 && pb.bytes+size > b.limits.MaxBytes {
		return fmt.Errorf("%w: %s holds %d bytes, +%d", ErrBufferOverflow, peer, pb.bytes, size)
	}
	return nil
}

// Admit stores the packet at peer if the limits allow it. Admitting a
// packet the peer already holds is a no-op.
func (b *Buffers) Admit(peer identity.PeerID, id identity.PacketID, size int) error {
	pb := b.getOrCreate(peer)
	if _, ok := pb.sizes[id]; ok {
		return nil
	}
	if err := b.Check(peer, size); err != nil {
		return err
	}
	pb.sizes[id] = size
	pb.bytes += size
	return nil
}

// Remove releases the packet from peer. It reports whether it was held.
func (b *Buffers) Remove(peer identity.PeerID, id identity.PacketID) bool {
	pb, ok := b.peers[peer]
	if !ok {
		return false
	}
	size, ok := pb.sizes[id]
	if !ok {
		return false
	}
	delete(pb.sizes, id)
	pb.bytes -= size
	return true
}

// Len returns the number of packets peer holds.
func (b *Buffers) Len(peer identity.PeerID) int {
	if pb, ok := b.peers[peer]; ok {
		return len(pb.sizes)
	}
	return 0
}

// Bytes returns the number of bytes peer holds.
func (b *Buffers) Bytes(peer identity.PeerID) int {
	if pb, ok := b.peers[peer]; ok {
		return pb.bytes
	}
	return 0
}

// Total returns the number of packets held across all peers.
func (b *Buffers) Total() int {
	n := 0
	for _, pb := range b.peers {
		n += len(pb.sizes)
	}
	return n
}
