package sim

import (
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/invite"
)

// The Record* methods are the simulation's invite.Recorder. They may also
// be called directly to account for handshakes run outside the simulation.
var _ invite.Recorder = (*Simulation)(nil)

// RecordInviteCreated records an invite from one peer to another.
func (s *Simulation) RecordInviteCreated(from, to identity.PeerID, interfaceID string) {
	s.stats.InvitesCreated++
	s.metrics.RecordInvite("created")
	s.emit(eventlog.Event{Type: eventlog.InviteCreated, From: from, To: to, InterfaceID: interfaceID})
}

// RecordKEMEncapsulation records an encapsulation by peer to target.
func (s *Simulation) RecordKEMEncapsulation(peer, target identity.PeerID, latencyUs uint64) {
	s.stats.RecordEncapsulation(latencyUs)
	s.metrics.RecordKEM("encapsulate", true, latencyUs)
	s.emit(eventlog.Event{
		Type:      eventlog.KEMEncapsulation,
		Peer:      peer,
		To:        target,
		LatencyUs: latencyUs,
		Success:   eventlog.Outcome(true),
	})
}

// RecordPQSignature records a signature created by peer.
func (s *Simulation) RecordPQSignature(peer identity.PeerID, latencyUs uint64, messageSize int) {
	s.stats.RecordSignature(latencyUs)
	s.metrics.RecordSignature("sign", true, latencyUs)
	s.emit(eventlog.Event{
		Type:      eventlog.PQSignatureCreated,
		Peer:      peer,
		LatencyUs: latencyUs,
		Size:      messageSize,
	})
}

// RecordPQVerification records peer checking a signature from sender.
func (s *Simulation) RecordPQVerification(peer, sender identity.PeerID, latencyUs uint64, success bool) {
	s.stats.RecordVerification(latencyUs, success)
	s.metrics.RecordSignature("verify", success, latencyUs)
	s.emit(eventlog.Event{
		Type:      eventlog.PQSignatureVerified,
		Peer:      peer,
		From:      sender,
		LatencyUs: latencyUs,
		Success:   eventlog.Outcome(success),
	})
}

// RecordKEMDecapsulation records peer decapsulating a ciphertext from sender.
func (s *Simulation) RecordKEMDecapsulation(peer, sender identity.PeerID, latencyUs uint64, success bool) {
	s.stats.RecordDecapsulation(latencyUs, success)
	s.metrics.RecordKEM("decapsulate", success, latencyUs)
	s.emit(eventlog.Event{
		Type:      eventlog.KEMDecapsulation,
		Peer:      peer,
		From:      sender,
		LatencyUs: latencyUs,
		Success:   eventlog.Outcome(success),
	})
}

// RecordInviteAccepted records peer joining an interface.
func (s *Simulation) RecordInviteAccepted(peer identity.PeerID, interfaceID string) {
	s.stats.InvitesAccepted++
	s.metrics.RecordInvite("accepted")
	s.emit(eventlog.Event{Type: eventlog.InviteAccepted, Peer: peer, InterfaceID: interfaceID})
}

// RecordInviteFailed records a rejected invite.
func (s *Simulation) RecordInviteFailed(peer identity.PeerID, interfaceID string, reason string) {
	s.stats.InvitesFailed++
	s.metrics.RecordInvite("failed")
	s.emit(eventlog.Event{Type: eventlog.InviteFailed, Peer: peer, InterfaceID: interfaceID, Detail: reason})
}

// Invite runs the handshake from creator to invitee for interfaceID at the
// current tick and records every step.
func (s *Simulation) Invite(creator, invitee identity.PeerID, interfaceID string) (*invite.Flow, error) {
	if err := s.checkPeer(creator); err != nil {
		return nil, err
	}
	if err := s.checkPeer(invitee); err != nil {
		return nil, err
	}
	return s.protocol.Invite(creator, invitee, interfaceID, s.tick, s)
}

// IsMember reports whether peer has joined interfaceID.
func (s *Simulation) IsMember(interfaceID string, peer identity.PeerID) bool {
	return s.protocol.Membership().IsMember(interfaceID, peer)
}

// Members returns the members of interfaceID.
func (s *Simulation) Members(interfaceID string) []invite.Member {
	return s.protocol.Membership().Members(interfaceID)
}

// Interfaces returns every interface with at least one member.
func (s *Simulation) Interfaces() []string {
	return s.protocol.Membership().Interfaces()
}

// Invites returns every handshake run so far.
func (s *Simulation) Invites() []*invite.Flow {
	return s.protocol.Flows()
}
