// Package stats aggregates the counters of a simulation run and derives
// the rates reported at the end of it.
package stats

import (
	"maps"

	"github.com/postalsys/muti-sim/internal/dtn"
	"github.com/postalsys/muti-sim/internal/identity"
)

// PeerCounters are the per-peer message counters.
type PeerCounters struct {
	Sent     uint64                    `json:"sent"`
	Received uint64                    `json:"received"`
	Relayed  uint64                    `json:"relayed"`
	Dropped  map[dtn.DropReason]uint64 `json:"dropped,omitempty"`
}

// Stats holds every counter of a run. The zero value is not usable; call New.
type Stats struct {
	MessagesSent      uint64 `json:"messages_sent"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	// MessagesExpired counts drops for MessageTimeout.
	MessagesExpired uint64                    `json:"messages_expired"`
	DroppedByReason map[dtn.DropReason]uint64 `json:"dropped_by_reason"`

	TotalHops         uint64 `json:"total_hops"`
	DirectDeliveries  uint64 `json:"direct_deliveries"`
	RelayedDeliveries uint64 `json:"relayed_deliveries"`
	Relays            uint64 `json:"relays"`

	BackpropsCompleted uint64 `json:"backprops_completed"`
	BackpropsTimedOut  uint64 `json:"backprops_timed_out"`

	WakeEvents       uint64 `json:"wake_events"`
	SleepEvents      uint64 `json:"sleep_events"`
	PowerTransitions uint64 `json:"power_transitions"`

	TotalDeliveryLatency uint64 `json:"total_delivery_latency"`
	TotalBackpropLatency uint64 `json:"total_backprop_latency"`

	PQSignaturesCreated  uint64 `json:"pq_signatures_created"`
	PQSignaturesVerified uint64 `json:"pq_signatures_verified"`
	PQSignatureFailures  uint64 `json:"pq_signature_failures"`
	KEMEncapsulations    uint64 `json:"kem_encapsulations"`
	KEMDecapsulations    uint64 `json:"kem_decapsulations"`
	KEMFailures          uint64 `json:"kem_failures"`

	TotalSignLatencyUs   uint64 `json:"total_sign_latency_us"`
	TotalVerifyLatencyUs uint64 `json:"total_verify_latency_us"`
	TotalEncapLatencyUs  uint64 `json:"total_encap_latency_us"`
	TotalDecapLatencyUs  uint64 `json:"total_decap_latency_us"`

	InvitesCreated  uint64 `json:"invites_created"`
	InvitesAccepted uint64 `json:"invites_accepted"`
	InvitesFailed   uint64 `json:"invites_failed"`

	Peers map[identity.PeerID]*PeerCounters `json:"peers,omitempty"`
}

// New creates empty stats.
func New() *Stats {
	return &Stats{
		DroppedByReason: make(map[dtn.DropReason]uint64),
		Peers:           make(map[identity.PeerID]*PeerCounters),
	}
}

// Peer returns the counters of peer, creating them on first use.
func (s *Stats) Peer(peer identity.PeerID) *PeerCounters {
	pc, ok := s.Peers[peer]
	if !ok {
		pc = &PeerCounters{Dropped: make(map[dtn.DropReason]uint64)}
		s.Peers[peer] = pc
	}
	return pc
}

// RecordSent counts a message accepted by SendMessage.
func (s *Stats) RecordSent(src identity.PeerID) {
	s.MessagesSent++
	s.Peer(src).Sent++
}

// RecordDelivered counts a delivery after hops edges and latency ticks.
func (s *Stats) RecordDelivered(dst identity.PeerID, hops int, latency uint64) {
	s.MessagesDelivered++
	s.TotalHops += uint64(hops)
	s.TotalDeliveryLatency += latency
	if hops <= 1 {
		s.DirectDeliveries++
	} else {
		s.RelayedDeliveries++
	}
	s.Peer(dst).Received++
}

// RecordRelay counts a packet stored by an intermediate peer.
func (s *Stats) RecordRelay(via identity.PeerID) {
	s.Relays++
	s.Peer(via).Relayed++
}

// RecordDrop counts a drop for reason at the peer holding the packet.
func (s *Stats) RecordDrop(at identity.PeerID, reason dtn.DropReason) {
	s.MessagesDropped++
	s.DroppedByReason[reason]++
	if reason == dtn.MessageTimeout {
		s.MessagesExpired++
	}
	s.Peer(at).Dropped[reason]++
}

// RecordBackprop counts a finished back-propagation.
func (s *Stats) RecordBackprop(completed bool, latency uint64) {
	if !completed {
		s.BackpropsTimedOut++
		return
	}
	s.BackpropsCompleted++
	s.TotalBackpropLatency += latency
}

// RecordSignature counts a signature created in latencyUs.
func (s *Stats) RecordSignature(latencyUs uint64) {
	s.PQSignaturesCreated++
	s.TotalSignLatencyUs += latencyUs
}

// RecordVerification counts a signature check and its outcome.
func (s *Stats) RecordVerification(latencyUs uint64, ok bool) {
	s.PQSignaturesVerified++
	s.TotalVerifyLatencyUs += latencyUs
	if !ok {
		s.PQSignatureFailures++
	}
}

// RecordEncapsulation counts a KEM encapsulation.
func (s *Stats) RecordEncapsulation(latencyUs uint64) {
	s.KEMEncapsulations++
	s.TotalEncapLatencyUs += latencyUs
}

// RecordDecapsulation counts a KEM decapsulation and its outcome.
func (s *Stats) RecordDecapsulation(latencyUs uint64, ok bool) {
	s.KEMDecapsulations++
	s.TotalDecapLatencyUs += latencyUs
	if !ok {
		s.KEMFailures++
	}
}

// Dropped returns the drop count for reason.
func (s *Stats) Dropped(reason dtn.DropReason) uint64 {
	return s.DroppedByReason[reason]
}

// Resolved returns delivered plus dropped messages.
func (s *Stats) Resolved() uint64 {
	return s.MessagesDelivered + s.MessagesDropped
}

// Pending returns messages that are neither delivered nor dropped.
func (s *Stats) Pending() uint64 {
	return s.MessagesSent - s.Resolved()
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// DeliveryRate is delivered / sent.
func (s *Stats) DeliveryRate() float64 {
	return ratio(s.MessagesDelivered, s.MessagesSent)
}

// DropRate is dropped / sent.
func (s *Stats) DropRate() float64 {
	return ratio(s.MessagesDropped, s.MessagesSent)
}

// AverageLatency is the mean delivery latency in ticks.
func (s *Stats) AverageLatency() float64 {
	return ratio(s.TotalDeliveryLatency, s.MessagesDelivered)
}

// AverageHops is the mean hop count of delivered messages.
func (s *Stats) AverageHops() float64 {
	return ratio(s.TotalHops, s.MessagesDelivered)
}

// BackpropSuccessRate is completed / (completed + timed out).
func (s *Stats) BackpropSuccessRate() float64 {
	return ratio(s.BackpropsCompleted, s.BackpropsCompleted+s.BackpropsTimedOut)
}

// AverageBackpropLatency is the mean back-propagation latency in ticks.
func (s *Stats) AverageBackpropLatency() float64 {
	return ratio(s.TotalBackpropLatency, s.BackpropsCompleted)
}

// SignatureFailureRate is failed / verified signatures.
func (s *Stats) SignatureFailureRate() float64 {
	return ratio(s.PQSignatureFailures, s.PQSignaturesVerified)
}

// KEMFailureRate is failed / attempted decapsulations.
func (s *Stats) KEMFailureRate() float64 {
	return ratio(s.KEMFailures, s.KEMDecapsulations)
}

// InviteSuccessRate is accepted / created invites.
func (s *Stats) InviteSuccessRate() float64 {
	return ratio(s.InvitesAccepted, s.InvitesCreated)
}

// AverageSignLatencyUs is the mean simulated signing latency.
func (s *Stats) AverageSignLatencyUs() float64 {
	return ratio(s.TotalSignLatencyUs, s.PQSignaturesCreated)
}

// AverageVerifyLatencyUs is the mean simulated verification latency.
func (s *Stats) AverageVerifyLatencyUs() float64 {
	return ratio(s.TotalVerifyLatencyUs, s.PQSignaturesVerified)
}

// AverageEncapLatencyUs is the mean simulated encapsulation latency.
func (s *Stats) AverageEncapLatencyUs() float64 {
	return ratio(s.TotalEncapLatencyUs, s.KEMEncapsulations)
}

// AverageDecapLatencyUs is the mean simulated decapsulation latency.
func (s *Stats) AverageDecapLatencyUs() float64 {
	return ratio(s.TotalDecapLatencyUs, s.KEMDecapsulations)
}

// Clone returns a deep copy.
func (s *Stats) Clone() *Stats {
	c := *s
	c.DroppedByReason = maps.Clone(s.DroppedByReason)
	c.Peers = make(map[identity.PeerID]*PeerCounters, len(s.Peers))
	for id, pc := range s.Peers {
		cp := *pc
		cp.Dropped = maps.Clone(pc.Dropped)
		c.Peers[id] = &cp
	}
	return &c
}

// Rates is the derived view of a Stats value.
type Rates struct {
	DeliveryRate           float64 `json:"delivery_rate"`
	DropRate               float64 `json:"drop_rate"`
	AverageLatency         float64 `json:"average_latency"`
	AverageHops            float64 `json:"average_hops"`
	BackpropSuccessRate    float64 `json:"backprop_success_rate"`
	AverageBackpropLatency float64 `json:"average_backprop_latency"`
	SignatureFailureRate   float64 `json:"signature_failure_rate"`
	KEMFailureRate         float64 `json:"kem_failure_rate"`
	InviteSuccessRate      float64 `json:"invite_success_rate"`
	AverageSignLatencyUs   float64 `json:"average_sign_latency_us"`
	AverageVerifyLatencyUs float64 `json:"average_verify_latency_us"`
	AverageEncapLatencyUs  float64 `json:"average_encap_latency_us"`
	AverageDecapLatencyUs  float64 `json:"average_decap_latency_us"`
}

// Rates computes every derived rate.
func (s *Stats) Rates() Rates {
	return Rates{
		DeliveryRate:           s.DeliveryRate(),
		DropRate:               s.DropRate(),
		AverageLatency:         s.AverageLatency(),
		AverageHops:            s.AverageHops(),
		BackpropSuccessRate:    s.BackpropSuccessRate(),
		AverageBackpropLatency: s.AverageBackpropLatency(),
		SignatureFailureRate:   s.SignatureFailureRate(),
		KEMFailureRate:         s.KEMFailureRate(),
		InviteSuccessRate:      s.InviteSuccessRate(),
		AverageSignLatencyUs:   s.AverageSignLatencyUs(),
		AverageVerifyLatencyUs: s.AverageVerifyLatencyUs(),
		AverageEncapLatencyUs:  s.AverageEncapLatencyUs(),
		AverageDecapLatencyUs:  s.AverageDecapLatencyUs(),
	}
}
