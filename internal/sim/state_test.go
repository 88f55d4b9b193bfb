package sim

import (
	"errors"
	"testing"

	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/sleep"
)

func TestForce_EmitsEventsAndCounts(t *testing.T) {
	s := newSim(t, lineMesh(t, 3), nil)

	if err := s.ForceOffline(peerA); err != nil {
		t.Fatalf("ForceOffline() error = %v", err)
	}
	if s.IsOnline(peerA) || s.CanSend(peerA) {
		t.Error("A should be offline")
	}
	// Already offline: no change.
	if err := s.ForceOffline(peerA); err != nil {
		t.Fatalf("ForceOffline() error = %v", err)
	}
	if err := s.ForceOnline(peerA); err != nil {
		t.Fatalf("ForceOnline() error = %v", err)
	}
	if !s.IsOnline(peerA) || !s.CanSend(peerA) {
		t.Error("A should be online")
	}

	st := s.Stats()
	if st.PowerTransitions != 2 || st.SleepEvents != 1 || st.WakeEvents != 1 {
		t.Errorf("transitions %d sleep %d wake %d; want 2, 1, 1",
			st.PowerTransitions, st.SleepEvents, st.WakeEvents)
	}
	events := s.EventLog().All()
	if len(events) != 2 || events[0].Type != eventlog.Sleep || events[1].Type != eventlog.Awake {
		t.Fatalf("events = %v, want sleep then awake", events)
	}
	if events[0].Peer != peerA || events[0].Tick != 0 {
		t.Errorf("sleep event = %+v, want A at tick 0", events[0])
	}
}

func TestForce_PinsAgainstSchedule(t *testing.T) {
	cfg := stableConfig()
	cfg.Simulation.SleepProbability = 1
	cfg.Simulation.WakeProbability = 1
	s := newSim(t, lineMesh(t, 2), cfg)

	if err := s.ForceOnline(peerA); err != nil {
		t.Fatalf("ForceOnline() error = %v", err)
	}
	s.RunTicks(5)
	if !s.IsOnline(peerA) {
		t.Error("pinned peer should stay online")
	}
	// B flips every tick.
	if got := s.Stats().PowerTransitions; got != 5 {
		t.Errorf("PowerTransitions = %d, want 5", got)
	}

	if err := s.Release(peerA); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	s.Step()
	if s.IsOnline(peerA) {
		t.Error("released peer should follow its schedule again")
	}
}

func TestForce_UnknownPeer(t *testing.T) {
	s := newSim(t, lineMesh(t, 2), nil)
	unknown := identity.MustParsePeerID("Z")

	for name, fn := range map[string]func(identity.PeerID) error{
		"ForceOnline":  s.ForceOnline,
		"ForceOffline": s.ForceOffline,
		"Release":      s.Release,
	} {
		if err := fn(unknown); !errors.Is(err, ErrUnknownPeer) {
			t.Errorf("%s(Z) error = %v, want ErrUnknownPeer", name, err)
		}
	}
}

func TestTransitions_BasicModeCounters(t *testing.T) {
	s := churnRun(t, 11, 50)
	st := s.Stats()

	if st.PowerTransitions != st.WakeEvents+st.SleepEvents {
		t.Errorf("basic mode: transitions %d != wake %d + sleep %d",
			st.PowerTransitions, st.WakeEvents, st.SleepEvents)
	}
	log := s.EventLog()
	if uint64(log.Count(eventlog.Awake)) != st.WakeEvents || uint64(log.Count(eventlog.Sleep)) != st.SleepEvents {
		t.Error("event counts do not match wake and sleep counters")
	}
}

func TestTransitions_DutyCycle(t *testing.T) {
	cfg := stableConfig()
	cfg.DutyCycle.Enabled = true
	s := newSim(t, lineMesh(t, 4), cfg)

	sum := s.Summary()
	if !sum.DutyCycle || sum.DutyPercent <= 0 {
		t.Fatalf("summary duty cycle = %v %v", sum.DutyCycle, sum.DutyPercent)
	}

	cycle := s.Config().Window().CycleLength()
	s.RunTicks(2 * cycle)

	st := s.Stats()
	if st.WakeEvents == 0 || st.SleepEvents == 0 {
		t.Fatalf("wake %d sleep %d, want both positive over two cycles", st.WakeEvents, st.SleepEvents)
	}
	// PreSleep and Waking are transitions without a reachability change.
	if st.PowerTransitions <= st.WakeEvents+st.SleepEvents {
		t.Errorf("transitions %d should exceed wake %d + sleep %d",
			st.PowerTransitions, st.WakeEvents, st.SleepEvents)
	}

	for _, peer := range s.Mesh().Peers() {
		state, ok := s.PowerState(peer)
		if !ok {
			t.Fatalf("PowerState(%s) not found", peer)
		}
		if state.CanReceive() != s.IsOnline(peer) || (state == sleep.Active) != s.CanSend(peer) {
			t.Errorf("%s: state %s disagrees with IsOnline/CanSend", peer, state)
		}
	}
}

func TestTransitions_DeterministicDutyCycle(t *testing.T) {
	run := func() []eventlog.Event {
		cfg := stableConfig()
		cfg.DutyCycle.Enabled = true
		s := newSim(t, lineMesh(t, 5), cfg)
		s.RunTicks(90)
		return s.EventLog().All()
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs produced %d and %d events", len(a), len(b))
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			t.Fatalf("event %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}
