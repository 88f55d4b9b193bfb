package sim

import (
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/sleep"
)

// ForceOnline pins peer online until the next Force call or Release.
func (s *Simulation) ForceOnline(peer identity.PeerID) error {
	return s.force(peer, true)
}

// ForceOffline pins peer offline until the next Force call or Release.
func (s *Simulation) ForceOffline(peer identity.PeerID) error {
	return s.force(peer, false)
}

func (s *Simulation) force(peer identity.PeerID, online bool) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}
	t, changed, err := s.schedule.Force(peer, online, s.tick)
	if err != nil {
		return err
	}
	if changed {
		s.applyTransition(t)
		s.metrics.SetPeersOnline(len(s.schedule.OnlinePeers()))
	}
	return nil
}

// Release returns peer to its schedule. The state is recomputed on the
// next Step.
func (s *Simulation) Release(peer identity.PeerID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}
	return s.schedule.Release(peer)
}

// IsOnline reports whether peer can receive.
func (s *Simulation) IsOnline(peer identity.PeerID) bool {
	return s.schedule.IsOnline(peer)
}

// CanSend reports whether peer can originate or forward packets.
func (s *Simulation) CanSend(peer identity.PeerID) bool {
	return s.schedule.CanSend(peer)
}

// PowerState returns the power state of peer.
func (s *Simulation) PowerState(peer identity.PeerID) (sleep.PowerState, bool) {
	return s.schedule.State(peer)
}

// OnlinePeers returns the peers that can receive, in peer order.
func (s *Simulation) OnlinePeers() []identity.PeerID {
	return s.schedule.OnlinePeers()
}

// transitions advances the schedule to the current tick.
func (s *Simulation) transitions() {
	for _, t := range s.schedule.Advance(s.tick, s.rng) {
		s.applyTransition(t)
	}
	s.metrics.SetPeersOnline(len(s.schedule.OnlinePeers()))
}

// applyTransition records a power state change. Reachability changes emit
// Awake or Sleep; every change counts as a power transition.
func (s *Simulation) applyTransition(t sleep.Transition) {
	s.stats.PowerTransitions++
	s.metrics.RecordPowerTransition(t.To.String())

	switch {
	case t.WentOnline():
		s.stats.WakeEvents++
		s.emit(eventlog.Event{Type: eventlog.Awake, Peer: t.Peer})
	case t.WentOffline():
		s.stats.SleepEvents++
		s.emit(eventlog.Event{Type: eventlog.Sleep, Peer: t.Peer})
	}

	s.logger.Debug("power transition",
		logging.KeyPeerID, t.Peer,
		logging.KeyTick, t.Tick,
		"from", t.From.String(),
		logging.KeyState, t.To.String())
}
