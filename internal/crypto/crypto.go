// Package crypto provides the post-quantum primitives behind simulated
// invites: ML-KEM-768 for key encapsulation, ML-DSA-65 for signatures,
// HKDF-SHA256 for derivation and ChaCha20-Poly1305 for sealing.
//
// Every key and nonce is derived from caller-supplied seeds so a simulation
// run with a fixed seed is reproducible byte for byte.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of ChaCha20-Poly1305 keys in bytes.
	KeySize = 32

	// NonceSize is the size of ChaCha20-Poly1305 nonces in bytes.
	NonceSize = 12

	// TagSize is the size of Poly1305 authentication tags in bytes.
	TagSize = 16

	// interfaceKeyInfo is the context string for interface key derivation.
	interfaceKeyInfo = "muti-sim-interface-v1"

	// peerSeedInfo prefixes the context string for per-peer key seeds.
	peerSeedInfo = "muti-sim-peer-v1"
)

// DeriveSeed expands master into size bytes bound to label. Distinct labels
// give independent outputs.
func DeriveSeed(master []byte, label string, size int) []byte {
	out := make([]byte, size)
	reader := hkdf.New(sha256.New, master, nil, []byte(label))
	if _, err := io.ReadFull(reader, out); err != nil {
		// HKDF-SHA256 can produce up to 8160 bytes; larger requests are a bug
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return out
}

// SimulationMaster encodes a simulation seed as HKDF input keying material.
func SimulationMaster(seed int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seed))
	return b[:]
}

// PeerKeys holds the long-term key pairs of one simulated peer.
type PeerKeys struct {
	KEM     *KEMKeypair
	Signing *SigningKeypair
}

// DerivePeerKeys deterministically derives a peer's key pairs from the
// simulation seed and the peer's name.
func DerivePeerKeys(seed int64, peer string) (*PeerKeys, error) {
	master := SimulationMaster(seed)

	kemKP, err := DeriveKEMKeypair(DeriveSeed(master, peerSeedInfo+"/kem/"+peer, KEMSeedSize()))
	if err != nil {
		return nil, fmt.Errorf("derive KEM keys for %s: %w", peer, err)
	}
	sigKP, err := DeriveSigningKeypair(DeriveSeed(master, peerSeedInfo+"/sig/"+peer, SigningSeedSize()))
	if err != nil {
		return nil, fmt.Errorf("derive signing keys for %s: %w", peer, err)
	}
	return &PeerKeys{KEM: kemKP, Signing: sigKP}, nil
}

// DeriveInterfaceKey derives the symmetric key of an interface from a KEM
// shared secret. The interface ID is mixed in so one secret never yields
// the same key for two interfaces.
func DeriveInterfaceKey(sharedSecret []byte, interfaceID string) [KeySize]byte {
	var key [KeySize]byte
	reader := hkdf.New(sha256.New, sharedSecret, []byte(interfaceID), []byte(interfaceKeyInfo))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// ZeroBytes zeroes out a byte slice to prevent sensitive data from lingering
// in memory.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey zeroes out a key array.
func ZeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}
