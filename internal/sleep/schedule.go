package sleep

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/postalsys/muti-sim/internal/identity"
)

// Probabilities drive basic mode. Each is a per-tick Bernoulli probability.
type Probabilities struct {
	Wake          float64
	Sleep         float64
	InitialOnline float64
}

// Config selects the schedule mode. A nil DutyCycle selects basic mode.
type Config struct {
	Probabilities Probabilities
	DutyCycle     *WindowConfig
}

// Transition records a change of power state.
type Transition struct {
	Peer identity.PeerID
	From PowerState
	To   PowerState
	Tick uint64
}

// WentOnline reports whether the peer became reachable.
func (t Transition) WentOnline() bool {
	return !t.From.CanReceive() && t.To.CanReceive()
}

// WentOffline reports whether the peer stopped being reachable.
func (t Transition) WentOffline() bool {
	return t.From.CanReceive() && !t.To.CanReceive()
}

type peerState struct {
	state          PowerState
	pinned         bool
	lastTransition uint64
}

// Schedule holds the power state of every peer. It is owned by a single
// simulation and is not safe for concurrent use.
type Schedule struct {
	peers []identity.PeerID
	state map[identity.PeerID]*peerState
	probs Probabilities
	calc  *WindowCalculator
}

// NewSchedule creates the schedule for peers at tick 0. In basic mode one
// draw per peer, in peer order, decides whether it starts online.
func NewSchedule(peers []identity.PeerID, cfg Config, rng *rand.Rand) (*Schedule, error) {
	s := &Schedule{
		peers: slices.Clone(peers),
		state: make(map[identity.PeerID]*peerState, len(peers)),
		probs: cfg.Probabilities,
	}
	slices.SortFunc(s.peers, identity.Compare)

	if cfg.DutyCycle != nil {
		calc, err := NewWindowCalculator(*cfg.DutyCycle)
		if err != nil {
			return nil, err
		}
		s.calc = calc
	}

	for _, id := range s.peers {
		ps := &peerState{}
		if s.calc != nil {
			ps.state = s.calc.StateAt(id, 0)
		} else if rng.Float64() < s.probs.InitialOnline {
			ps.state = Active
		} else {
			ps.state = Sleeping
		}
		s.state[id] = ps
	}
	return s, nil
}

// DutyCycle reports whether the schedule runs in duty-cycle mode.
func (s *Schedule) DutyCycle() bool {
	return s.calc != nil
}

// Calculator returns the duty-cycle calculator, or nil in basic mode.
func (s *Schedule) Calculator() *WindowCalculator {
	return s.calc
}

// Advance moves every peer to its state for tick and returns the
// transitions in peer order. In basic mode a draw is taken for every peer,
// pinned or not, so pinning one peer does not shift the others' draws.
func (s *Schedule) Advance(tick uint64, rng *rand.Rand) []Transition {
	var out []Transition
	for _, id := range s.peers {
		ps := s.state[id]

		var next PowerState
		if s.calc != nil {
			next = s.calc.StateAt(id, tick)
		} else {
			r := rng.Float64()
			next = ps.state
			if ps.state.CanReceive() {
				if r < s.probs.Sleep {
					next = Sleeping
				}
			} else if r < s.probs.Wake {
				next = Active
			}
		}

		if ps.pinned || next == ps.state {
			continue
		}
		out = append(out, Transition{Peer: id, From: ps.state, To: next, Tick: tick})
		ps.state = next
		ps.lastTransition = tick
	}
	return out
}

// Force pins the peer online (Active) or offline (Sleeping) until the next
// Force or Release. It returns the transition if the state changed.
func (s *Schedule) Force(peer identity.PeerID, online bool, tick uint64) (Transition, bool, error) {
	ps, ok := s.state[peer]
	if !ok {
		return Transition{}, false, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	target := Sleeping
	if online {
		target = Active
	}
	ps.pinned = true
	if ps.state == target {
		return Transition{}, false, nil
	}
	t := Transition{Peer: peer, From: ps.state, To: target, Tick: tick}
	ps.state = target
	ps.lastTransition = tick
	return t, true, nil
}

// Release unpins the peer. Its state is recomputed on the next Advance.
func (s *Schedule) Release(peer identity.PeerID) error {
	ps, ok := s.state[peer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	ps.pinned = false
	return nil
}

// State returns the peer's power state.
func (s *Schedule) State(peer identity.PeerID) (PowerState, bool) {
	ps, ok := s.state[peer]
	if !ok {
		return Sleeping, false
	}
	return ps.state, true
}

// IsOnline reports whether the peer can receive. Unknown peers are offline.
func (s *Schedule) IsOnline(peer identity.PeerID) bool {
	st, ok := s.State(peer)
	return ok && st.CanReceive()
}

// CanSend reports whether the peer can forward packets.
func (s *Schedule) CanSend(peer identity.PeerID) bool {
	st, ok := s.State(peer)
	return ok && st.CanSend()
}

// Pinned reports whether the peer is under explicit control.
func (s *Schedule) Pinned(peer identity.PeerID) bool {
	ps, ok := s.state[peer]
	return ok && ps.pinned
}

// LastTransition returns the tick of the peer's last state change.
func (s *Schedule) LastTransition(peer identity.PeerID) uint64 {
	if ps, ok := s.state[peer]; ok {
		return ps.lastTransition
	}
	return 0
}

// OnlinePeers returns the peers that can currently receive, in peer order.
func (s *Schedule) OnlinePeers() []identity.PeerID {
	var out []identity.PeerID
	for _, id := range s.peers {
		if s.state[id].state.CanReceive() {
			out = append(out, id)
		}
	}
	return out
}
