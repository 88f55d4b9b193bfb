// Package loadtest generates simulation workloads and drives a Simulation
// through them.
package loadtest

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/postalsys/muti-sim/internal/config"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/invite"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/sim"
)

// Send is one planned message.
type Send struct {
	Tick uint64
	From identity.PeerID
	To   identity.PeerID
	Size int
}

// InviteRequest is one planned invite handshake.
type InviteRequest struct {
	Tick      uint64
	Creator   identity.PeerID
	Invitee   identity.PeerID
	Interface string
}

// Plan is a workload ordered by tick.
type Plan struct {
	Sends   []Send
	Invites []InviteRequest
}

// InterfaceName returns the name of the i-th generated interface.
func InterfaceName(i int) string {
	return fmt.Sprintf("iface-%d", i)
}

// NewPlan spreads cfg's messages and invites over the send window with a
// generator seeded from seed. Each interface has one owner that creates
// every invite to it. Meshes with fewer than two peers get an empty plan.
func NewPlan(cfg config.WorkloadConfig, peers []identity.PeerID, seed int64) *Plan {
	plan := &Plan{}
	if len(peers) < 2 {
		return plan
	}
	rng := rand.New(rand.NewSource(seed))
	window := max(cfg.SendWindow, 1)

	// other draws a peer index different from i.
	other := func(i int) int {
		j := rng.Intn(len(peers) - 1)
		if j >= i {
			j++
		}
		return j
	}

	for range cfg.Messages {
		i := rng.Intn(len(peers))
		plan.Sends = append(plan.Sends, Send{
			Tick: uint64(rng.Int63n(int64(window))),
			From: peers[i],
			To:   peers[other(i)],
			Size: int(cfg.MessageSize),
		})
	}

	if cfg.Invites > 0 && cfg.Interfaces > 0 {
		owners := make([]int, cfg.Interfaces)
		for i := range owners {
			owners[i] = rng.Intn(len(peers))
		}
		for range cfg.Invites {
			iface := rng.Intn(len(owners))
			owner := owners[iface]
			plan.Invites = append(plan.Invites, InviteRequest{
				Tick:      uint64(rng.Int63n(int64(window))),
				Creator:   peers[owner],
				Invitee:   peers[other(owner)],
				Interface: InterfaceName(iface),
			})
		}
	}

	slices.SortStableFunc(plan.Sends, func(a, b Send) int { return cmp.Compare(a.Tick, b.Tick) })
	slices.SortStableFunc(plan.Invites, func(a, b InviteRequest) int { return cmp.Compare(a.Tick, b.Tick) })
	return plan
}

// Metrics summarizes a driven run.
type Metrics struct {
	Ticks          uint64
	Submitted      int
	Rejected       int
	InvitesRun     int
	InvitesFailed  int
	InviteErrors   int
	Duration       time.Duration
	TicksPerSecond float64
}

// Driver feeds a plan into a simulation tick by tick.
type Driver struct {
	sim    *sim.Simulation
	plan   *Plan
	logger *slog.Logger

	nextSend   int
	nextInvite int
	metrics    Metrics
}

// NewDriver creates a driver for plan.
func NewDriver(s *sim.Simulation, plan *Plan, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Driver{
		sim:    s,
		plan:   plan,
		logger: logger.With(logging.KeyComponent, "loadtest"),
	}
}

// Run submits the work planned for each tick, then steps, until max_ticks
// is reached or ctx is done.
func (d *Driver) Run(ctx context.Context) (*Metrics, error) {
	start := time.Now()
	maxTicks := d.sim.Config().Simulation.MaxTicks

	var err error
	for d.sim.Tick() < maxTicks {
		if err = ctx.Err(); err != nil {
			break
		}
		d.submit(d.sim.Tick())
		d.sim.Step()
	}

	d.metrics.Ticks = d.sim.Tick()
	d.metrics.Duration = time.Since(start)
	if secs := d.metrics.Duration.Seconds(); secs > 0 {
		d.metrics.TicksPerSecond = float64(d.metrics.Ticks) / secs
	}
	d.logger.Info("workload finished",
		logging.KeyTick, d.metrics.Ticks,
		"submitted", d.metrics.Submitted,
		"rejected", d.metrics.Rejected,
		"invites", d.metrics.InvitesRun,
		"duration", d.metrics.Duration)

	m := d.metrics
	return &m, err
}

// submit hands every send and invite planned for tick to the simulation.
func (d *Driver) submit(tick uint64) {
	for ; d.nextSend < len(d.plan.Sends) && d.plan.Sends[d.nextSend].Tick <= tick; d.nextSend++ {
		s := d.plan.Sends[d.nextSend]
		if _, err := d.sim.SendMessage(s.From, s.To, make([]byte, s.Size)); err != nil {
			d.metrics.Rejected++
			d.logger.Debug("send rejected",
				logging.KeyFrom, s.From,
				logging.KeyTo, s.To,
				logging.KeyError, err)
			continue
		}
		d.metrics.Submitted++
	}

	for ; d.nextInvite < len(d.plan.Invites) && d.plan.Invites[d.nextInvite].Tick <= tick; d.nextInvite++ {
		r := d.plan.Invites[d.nextInvite]
		flow, err := d.sim.Invite(r.Creator, r.Invitee, r.Interface)
		if err != nil {
			d.metrics.InviteErrors++
			d.logger.Debug("invite rejected",
				logging.KeyInterface, r.Interface,
				logging.KeyPeerID, r.Invitee,
				logging.KeyError, err)
			continue
		}
		d.metrics.InvitesRun++
		if flow.Status == invite.StatusFailed {
			d.metrics.InvitesFailed++
		}
	}
}
