package sim

import (
	"context"

	"github.com/postalsys/muti-sim/internal/logging"
)

// Step advances the clock by one tick and runs every phase in order:
// state transitions, expiry sweep, sender outboxes, relay advancement and
// back-propagation. Per-tick bandwidth budgets refill at the new tick.
func (s *Simulation) Step() {
	s.tick++
	s.metrics.SetTick(s.tick)

	s.transitions()
	s.sweepExpired()
	s.processOutbox()
	s.advance()
	s.propagate()
}

// RunTicks runs n steps.
func (s *Simulation) RunTicks(n uint64) {
	for range n {
		s.Step()
	}
}

// Run steps until the configured max_ticks is reached.
func (s *Simulation) Run() {
	_ = s.RunContext(context.Background())
}

// RunContext steps until max_ticks is reached or ctx is done. It returns
// the context error if the run was interrupted.
func (s *Simulation) RunContext(ctx context.Context) error {
	for s.tick < s.cfg.Simulation.MaxTicks {
		if err := ctx.Err(); err != nil {
			s.logger.Info("simulation interrupted", logging.KeyTick, s.tick)
			return err
		}
		s.Step()
	}
	s.logger.Info("simulation complete",
		logging.KeyTick, s.tick,
		"sent", s.stats.MessagesSent,
		"delivered", s.stats.MessagesDelivered,
		"dropped", s.stats.MessagesDropped)
	return nil
}
