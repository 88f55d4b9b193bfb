// Package sim runs the discrete-time mesh simulation.
//
// A Simulation owns the clock, the peer schedule, every packet and the
// event log. Each Step advances the clock by one tick and runs a fixed
// sequence of phases: peer state transitions, the expiry sweep, the sender
// outboxes, relay advancement and delivery back-propagation. All randomness
// comes from one generator seeded from the configuration, so the same mesh,
// configuration and call sequence always produce the same run.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/postalsys/muti-sim/internal/config"
	"github.com/postalsys/muti-sim/internal/dtn"
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/invite"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/metrics"
	"github.com/postalsys/muti-sim/internal/routing"
	"github.com/postalsys/muti-sim/internal/sleep"
	"github.com/postalsys/muti-sim/internal/stats"
	"github.com/postalsys/muti-sim/internal/topology"
)

var (
	// ErrSelfSend is returned when a message is addressed to its sender.
	ErrSelfSend = errors.New("cannot send a message to self")

	// ErrUnknownPeer is returned for peers that are not in the mesh.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrNilMesh is returned when New is called without a mesh.
	ErrNilMesh = errors.New("mesh is required")
)

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulation) {
		s.logger = logger
	}
}

// WithMetrics mirrors the run into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulation) {
		s.metrics = m
	}
}

// WithEventHook registers fn to be called for every appended event.
func WithEventHook(fn func(eventlog.Event)) Option {
	return func(s *Simulation) {
		s.hooks = append(s.hooks, fn)
	}
}

// backprop is a delivery confirmation walking the realised path backwards.
type backprop struct {
	packet    identity.PacketID
	path      []identity.PeerID
	pos       int // index of the peer currently holding the confirmation
	delivered uint64
}

// Simulation is a single-owner simulation handle. It is not safe for
// concurrent use.
type Simulation struct {
	cfg     *config.Config
	mesh    *topology.Mesh
	rng     *rand.Rand
	logger  *slog.Logger
	metrics *metrics.Metrics
	hooks   []func(eventlog.Event)

	tick     uint64
	schedule *sleep.Schedule
	routes   *routing.Table
	buffers  *dtn.Buffers
	meter    *dtn.Meter
	protocol *invite.Protocol

	log   *eventlog.Log
	stats *stats.Stats

	packets   map[identity.PacketID]*dtn.Packet
	sequence  map[identity.PeerID]uint64
	outbox    []*dtn.Packet
	inFlight  []*dtn.Packet
	backprops []*backprop
	// custody lists the intermediate peers that stored a delivered packet
	// until its confirmation finishes.
	custody map[identity.PacketID][]identity.PeerID
}

// New creates a simulation over mesh at tick 0. Basic-mode peers draw
// their initial state from the seeded generator; no events are emitted for
// the initial states.
func New(mesh *topology.Mesh, cfg *config.Config, opts ...Option) (*Simulation, error) {
	if mesh == nil {
		return nil, ErrNilMesh
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	limits := dtn.BufferLimits{
		MaxMessages: cfg.Constraints.MaxPendingMessages,
		MaxBytes:    int(cfg.Constraints.MaxPendingBytes),
	}
	s := &Simulation{
		cfg:      cfg.Clone(),
		mesh:     mesh,
		rng:      rand.New(rand.NewSource(cfg.Simulation.Seed)),
		routes:   routing.NewTable(mesh),
		buffers:  dtn.NewBuffers(limits),
		meter:    dtn.NewMeter(int(cfg.Constraints.BandwidthLimitPerTick)),
		log:      eventlog.New(),
		stats:    stats.New(),
		packets:  make(map[identity.PacketID]*dtn.Packet),
		sequence: make(map[identity.PeerID]uint64),
		custody:  make(map[identity.PacketID][]identity.PeerID),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	s.logger = s.logger.With(logging.KeyComponent, "sim")
	if s.metrics == nil {
		s.metrics = metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	}

	schedule, err := sleep.NewSchedule(mesh.Peers(), cfg.Schedule(), s.rng)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	s.schedule = schedule
	s.protocol = invite.NewProtocol(cfg.Invite(), s.rng, s.logger)

	s.metrics.SetTick(0)
	s.metrics.SetPeersOnline(len(schedule.OnlinePeers()))

	s.logger.Debug("simulation created",
		logging.KeySeed, cfg.Simulation.Seed,
		"peers", mesh.PeerCount(),
		"edges", mesh.EdgeCount(),
		"duty_cycle", schedule.DutyCycle())
	return s, nil
}

// Tick returns the current tick.
func (s *Simulation) Tick() uint64 {
	return s.tick
}

// Mesh returns the topology.
func (s *Simulation) Mesh() *topology.Mesh {
	return s.mesh
}

// Config returns a copy of the configuration in use.
func (s *Simulation) Config() *config.Config {
	return s.cfg.Clone()
}

// Stats returns a snapshot of the counters.
func (s *Simulation) Stats() *stats.Stats {
	return s.stats.Clone()
}

// EventLog returns the event log. Callers must not append to it.
func (s *Simulation) EventLog() *eventlog.Log {
	return s.log
}

// Routes returns the routing table.
func (s *Simulation) Routes() *routing.Table {
	return s.routes
}

// Packet returns a copy of the packet with the given ID.
func (s *Simulation) Packet(id identity.PacketID) (*dtn.Packet, bool) {
	p, ok := s.packets[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// InFlight returns copies of every unresolved packet: queued packets in
// submission order followed by admitted packets in admission order.
func (s *Simulation) InFlight() []*dtn.Packet {
	out := make([]*dtn.Packet, 0, len(s.outbox)+len(s.inFlight))
	for _, p := range s.outbox {
		out = append(out, p.Clone())
	}
	for _, p := range s.inFlight {
		out = append(out, p.Clone())
	}
	return out
}

// Custody returns the intermediate peers still holding bookkeeping for a
// delivered packet whose confirmation is under way.
func (s *Simulation) Custody(id identity.PacketID) []identity.PeerID {
	return append([]identity.PeerID(nil), s.custody[id]...)
}

// PendingBackprops returns the number of confirmations still walking back.
func (s *Simulation) PendingBackprops() int {
	return len(s.backprops)
}

func (s *Simulation) checkPeer(id identity.PeerID) error {
	if !s.mesh.Has(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return nil
}

// emit appends an event and fans it out to hooks.
func (s *Simulation) emit(e eventlog.Event) {
	e.Tick = s.tick
	e = s.log.Append(e)
	if s.cfg.Simulation.TraceRouting {
		s.logger.Debug("event",
			logging.KeyTick, e.Tick,
			"type", e.Type.String(),
			"detail", e.String())
	}
	for _, fn := range s.hooks {
		fn(e)
	}
}
