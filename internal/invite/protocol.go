// Package invite runs the post-quantum invite handshake that admits peers
// to an interface.
//
// The creator encapsulates a fresh secret to the invitee's ML-KEM key,
// seals the invite under it and signs the cleartext header with ML-DSA. The
// invitee verifies the signature, decapsulates and opens the box. A failed
// open is the decapsulation failure; a bad signature is recorded but does
// not by itself reject the invite.
package invite

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/postalsys/muti-sim/internal/chaos"
	"github.com/postalsys/muti-sim/internal/crypto"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/logging"
)

var (
	// ErrKEMDecapsulationFailed is the failure reason when the invitee cannot
	// recover the creator's secret.
	ErrKEMDecapsulationFailed = errors.New("KEM decapsulation failed")

	// ErrSelfInvite is returned when creator and invitee are the same peer.
	ErrSelfInvite = errors.New("peer cannot invite itself")

	// ErrEmptyInterface is returned when no interface ID is given.
	ErrEmptyInterface = errors.New("interface ID is required")
)

// Status is the outcome of an invite flow.
type Status uint8

const (
	// StatusCreated flows are still in progress.
	StatusCreated Status = iota
	// StatusAccepted flows admitted the invitee.
	StatusAccepted
	// StatusFailed flows left membership unchanged.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Recorder receives the observable steps of a handshake.
type Recorder interface {
	RecordInviteCreated(from, to identity.PeerID, interfaceID string)
	RecordKEMEncapsulation(peer, target identity.PeerID, latencyUs uint64)
	RecordPQSignature(peer identity.PeerID, latencyUs uint64, messageSize int)
	RecordPQVerification(peer, sender identity.PeerID, latencyUs uint64, success bool)
	RecordKEMDecapsulation(peer, sender identity.PeerID, latencyUs uint64, success bool)
	RecordInviteAccepted(peer identity.PeerID, interfaceID string)
	RecordInviteFailed(peer identity.PeerID, interfaceID string, reason string)
}

// Latency models the simulated cost of an operation in microseconds as
// Base plus a uniform draw from [-Jitter, +Jitter].
type Latency struct {
	BaseUs   uint64 `yaml:"base_us" json:"base_us"`
	JitterUs uint64 `yaml:"jitter_us" json:"jitter_us"`
}

// Latencies holds the latency model of every handshake step.
type Latencies struct {
	Encapsulate Latency `yaml:"encapsulate" json:"encapsulate"`
	Decapsulate Latency `yaml:"decapsulate" json:"decapsulate"`
	Sign        Latency `yaml:"sign" json:"sign"`
	Verify      Latency `yaml:"verify" json:"verify"`
}

// DefaultLatencies returns figures in line with ML-KEM-768 and ML-DSA-65 on
// a modern core.
func DefaultLatencies() Latencies {
	return Latencies{
		Encapsulate: Latency{BaseUs: 60, JitterUs: 20},
		Decapsulate: Latency{BaseUs: 70, JitterUs: 20},
		Sign:        Latency{BaseUs: 300, JitterUs: 100},
		Verify:      Latency{BaseUs: 120, JitterUs: 40},
	}
}

// spikeFactor multiplies a latency when a spike fault fires.
const spikeFactor = 10

// Flow records one invite from creation to its outcome.
type Flow struct {
	ID          uint64          `json:"id"`
	Creator     identity.PeerID `json:"creator"`
	Invitee     identity.PeerID `json:"invitee"`
	InterfaceID string          `json:"interface_id"`
	Tick        uint64          `json:"tick"`

	KEMCiphertextSize int  `json:"kem_ciphertext_size"`
	SignatureSize     int  `json:"signature_size"`
	CiphertextTamper  bool `json:"ciphertext_tampered"`
	SignatureTamper   bool `json:"signature_tampered"`

	EncapsulateUs uint64 `json:"encapsulate_us"`
	SignUs        uint64 `json:"sign_us"`
	VerifyUs      uint64 `json:"verify_us"`
	DecapsulateUs uint64 `json:"decapsulate_us"`

	SignatureValid bool   `json:"signature_valid"`
	Status         Status `json:"status"`
	Failure        string `json:"failure,omitempty"`
	// KeyFingerprint identifies the interface key on success.
	KeyFingerprint string `json:"key_fingerprint,omitempty"`
}

// header is the signed cleartext part of an invite.
type header struct {
	ID          uint64          `json:"id"`
	Creator     identity.PeerID `json:"creator"`
	Invitee     identity.PeerID `json:"invitee"`
	InterfaceID string          `json:"interface_id"`
	Tick        uint64          `json:"tick"`
}

// payload is the sealed part of an invite.
type payload struct {
	InterfaceID string `json:"interface_id"`
	Nonce       uint64 `json:"nonce"`
}

// Config configures the protocol.
type Config struct {
	// Seed derives every peer's long-term keys.
	Seed                 int64
	KEMFailureRate       float64
	SignatureFailureRate float64
	LatencySpikeRate     float64
	Latencies            Latencies
}

// Protocol runs invite handshakes. It is owned by a single simulation and
// draws all randomness from the simulation's rng.
type Protocol struct {
	cfg      Config
	rng      *rand.Rand
	injector *chaos.FaultInjector
	logger   *slog.Logger

	keys    map[identity.PeerID]*crypto.PeerKeys
	members *Membership
	flows   []*Flow
}

// NewProtocol creates a protocol drawing from rng.
func NewProtocol(cfg Config, rng *rand.Rand, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = logging.NopLogger()
	}
	injector := chaos.NewFaultInjector(rng,
		chaos.FaultConfig{Type: chaos.FaultKEMDecapsulation, Probability: cfg.KEMFailureRate},
		chaos.FaultConfig{Type: chaos.FaultSignature, Probability: cfg.SignatureFailureRate},
		chaos.FaultConfig{Type: chaos.FaultLatencySpike, Probability: cfg.LatencySpikeRate},
	)
	return &Protocol{
		cfg:      cfg,
		rng:      rng,
		injector: injector,
		logger:   logger.With(logging.KeyComponent, "invite"),
		keys:     make(map[identity.PeerID]*crypto.PeerKeys),
		members:  NewMembership(),
	}
}

// Membership returns the interface membership table.
func (p *Protocol) Membership() *Membership {
	return p.members
}

// Injector returns the fault injector.
func (p *Protocol) Injector() *chaos.FaultInjector {
	return p.injector
}

// Flows returns every flow run so far, oldest first.
func (p *Protocol) Flows() []*Flow {
	out := make([]*Flow, len(p.flows))
	copy(out, p.flows)
	return out
}

// Keys returns the peer's key pairs, deriving and caching them on first use.
func (p *Protocol) Keys(peer identity.PeerID) (*crypto.PeerKeys, error) {
	if k, ok := p.keys[peer]; ok {
		return k, nil
	}
	k, err := crypto.DerivePeerKeys(p.cfg.Seed, peer.String())
	if err != nil {
		return nil, err
	}
	p.keys[peer] = k
	return k, nil
}

// latency draws a simulated latency for one operation.
func (p *Protocol) latency(l Latency) uint64 {
	us := l.BaseUs
	if l.JitterUs > 0 {
		delta := p.rng.Int63n(int64(2*l.JitterUs + 1))
		us = uint64(max(int64(l.BaseUs)+delta-int64(l.JitterUs), 0))
	}
	if p.injector.Maybe(chaos.FaultLatencySpike) {
		us *= spikeFactor
	}
	return us
}

// Invite runs a full handshake from creator to invitee for iface at tick.
// Protocol failures are reported in the returned flow; the error is only
// set for invalid arguments or internal faults.
func (p *Protocol) Invite(creator, invitee identity.PeerID, iface string, tick uint64, rec Recorder) (*Flow, error) {
	if creator == invitee {
		return nil, fmt.Errorf("%w: %s", ErrSelfInvite, creator)
	}
	if iface == "" {
		return nil, ErrEmptyInterface
	}

	creatorKeys, err := p.Keys(creator)
	if err != nil {
		return nil, err
	}
	inviteeKeys, err := p.Keys(invitee)
	if err != nil {
		return nil, err
	}

	flow := &Flow{
		ID:          uint64(len(p.flows)),
		Creator:     creator,
		Invitee:     invitee,
		InterfaceID: iface,
		Tick:        tick,
		Status:      StatusCreated,
	}
	p.flows = append(p.flows, flow)
	rec.RecordInviteCreated(creator, invitee, iface)

	// The creator founds the interface the first time it invites to it.
	if !p.members.IsMember(iface, creator) {
		p.members.Add(iface, Member{Peer: creator, JoinedTick: tick})
	}

	hdr, err := json.Marshal(header{
		ID:          flow.ID,
		Creator:     creator,
		Invitee:     invitee,
		InterfaceID: iface,
		Tick:        tick,
	})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	body, err := json.Marshal(payload{InterfaceID: iface, Nonce: p.rng.Uint64()})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	// Creator: encapsulate and seal.
	encapsSeed := make([]byte, crypto.EncapsulationSeedSize())
	_, _ = p.rng.Read(encapsSeed)
	box, creatorSecret, err := crypto.Seal(inviteeKeys.KEM.Public, body, hdr, encapsSeed)
	if err != nil {
		return nil, fmt.Errorf("seal invite: %w", err)
	}
	flow.KEMCiphertextSize = len(box.KEMCiphertext)
	flow.EncapsulateUs = p.latency(p.cfg.Latencies.Encapsulate)
	rec.RecordKEMEncapsulation(creator, invitee, flow.EncapsulateUs)

	// Creator: sign the cleartext header.
	sig := creatorKeys.Signing.Sign(hdr)
	flow.SignatureSize = len(sig)
	flow.SignUs = p.latency(p.cfg.Latencies.Sign)
	rec.RecordPQSignature(creator, flow.SignUs, len(hdr))

	// In transit.
	flow.CiphertextTamper = p.injector.MaybeCorrupt(chaos.FaultKEMDecapsulation, box.KEMCiphertext)
	flow.SignatureTamper = p.injector.MaybeCorrupt(chaos.FaultSignature, sig)

	// Invitee: verify, then decapsulate and open.
	flow.SignatureValid = crypto.Verify(creatorKeys.Signing.Public, hdr, sig)
	flow.VerifyUs = p.latency(p.cfg.Latencies.Verify)
	rec.RecordPQVerification(invitee, creator, flow.VerifyUs, flow.SignatureValid)

	_, inviteeSecret, openErr := crypto.Open(inviteeKeys.KEM, box, hdr)
	flow.DecapsulateUs = p.latency(p.cfg.Latencies.Decapsulate)
	rec.RecordKEMDecapsulation(invitee, creator, flow.DecapsulateUs, openErr == nil)

	if openErr != nil {
		flow.Status = StatusFailed
		flow.Failure = ErrKEMDecapsulationFailed.Error()
		rec.RecordInviteFailed(invitee, iface, flow.Failure)
		p.logger.Debug("invite failed",
			logging.KeyFrom, creator,
			logging.KeyTo, invitee,
			logging.KeyInterface, iface,
			logging.KeyError, openErr)
		return flow, nil
	}

	creatorKey := crypto.DeriveInterfaceKey(creatorSecret, iface)
	inviteeKey := crypto.DeriveInterfaceKey(inviteeSecret, iface)
	if creatorKey != inviteeKey {
		return nil, fmt.Errorf("interface key mismatch for %s", iface)
	}

	flow.Status = StatusAccepted
	flow.KeyFingerprint = Fingerprint(inviteeKey)
	p.members.Add(iface, Member{Peer: invitee, KeyFingerprint: flow.KeyFingerprint, JoinedTick: tick})
	rec.RecordInviteAccepted(invitee, iface)

	crypto.ZeroKey(&creatorKey)
	crypto.ZeroKey(&inviteeKey)

	p.logger.Debug("invite accepted",
		logging.KeyFrom, creator,
		logging.KeyTo, invitee,
		logging.KeyInterface, iface,
		"signature_valid", flow.SignatureValid)
	return flow, nil
}

// NopRecorder discards every record.
type NopRecorder struct{}

func (NopRecorder) RecordInviteCreated(identity.PeerID, identity.PeerID, string) {}
func (NopRecorder) RecordKEMEncapsulation(identity.PeerID, identity.PeerID, uint64) {}
func (NopRecorder) RecordPQSignature(identity.PeerID, uint64, int) {}
func (NopRecorder) RecordPQVerification(identity.PeerID, identity.PeerID, uint64, bool) {}
func (NopRecorder) RecordKEMDecapsulation(identity.PeerID, identity.PeerID, uint64, bool) {}
func (NopRecorder) RecordInviteAccepted(identity.PeerID, string) {}
func (NopRecorder) RecordInviteFailed(identity.PeerID, string, string) {}
