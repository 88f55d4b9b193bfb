package sleep

import (
	"fmt"
	"hash/fnv"

	"github.com/postalsys/muti-sim/internal/identity"
)

// WindowConfig sets the length in ticks of each duty-cycle window.
type WindowConfig struct {
	ActiveTicks   uint64
	PreSleepTicks uint64
	SleepingTicks uint64
	WakingTicks   uint64
}

// DefaultWindowConfig returns a 10% duty cycle over a 30 tick period.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		ActiveTicks:   3,
		PreSleepTicks: 1,
		SleepingTicks: 24,
		WakingTicks:   2,
	}
}

// CycleLength returns the total length of one cycle.
func (c WindowConfig) CycleLength() uint64 {
	return c.ActiveTicks + c.PreSleepTicks + c.SleepingTicks + c.WakingTicks
}

// DutyPercentage returns the share of the cycle spent Active, in percent.
func (c WindowConfig) DutyPercentage() float64 {
	total := c.CycleLength()
	if total == 0 {
		return 100
	}
	return float64(c.ActiveTicks) / float64(total) * 100
}

// Validate checks the window lengths.
func (c WindowConfig) Validate() error {
	if c.ActiveTicks == 0 {
		return ErrInvalidWindow
	}
	return nil
}

// WindowCalculator maps (peer, tick) to a power state.
type WindowCalculator struct {
	cfg   WindowConfig
	cycle uint64
}

// NewWindowCalculator creates a WindowCalculator with the given config.
func NewWindowCalculator(cfg WindowConfig) (*WindowCalculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("window config: %w", err)
	}
	return &WindowCalculator{cfg: cfg, cycle: cfg.CycleLength()}, nil
}

// phaseOffset derives a deterministic cycle offset from the peer ID using
// 64-bit FNV-1a, so peers with the same config do not all sleep together.
func (w *WindowCalculator) phaseOffset(peer identity.PeerID) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(peer))
	return h.Sum64() % w.cycle
}

// position returns where in its cycle the peer is at the given tick.
func (w *WindowCalculator) position(peer identity.PeerID, tick uint64) uint64 {
	return (tick%w.cycle + w.phaseOffset(peer)) % w.cycle
}

// StateAt returns the peer's power state at tick.
func (w *WindowCalculator) StateAt(peer identity.PeerID, tick uint64) PowerState {
	pos := w.position(peer, tick)
	switch {
	case pos < w.cfg.ActiveTicks:
		return Active
	case pos < w.cfg.ActiveTicks+w.cfg.PreSleepTicks:
		return PreSleep
	case pos < w.cfg.ActiveTicks+w.cfg.PreSleepTicks+w.cfg.SleepingTicks:
		return Sleeping
	default:
		return Waking
	}
}

// TicksUntilActive returns how many ticks until the peer is next Active.
// It returns 0 if the peer is Active at tick.
func (w *WindowCalculator) TicksUntilActive(peer identity.PeerID, tick uint64) uint64 {
	pos := w.position(peer, tick)
	if pos < w.cfg.ActiveTicks {
		return 0
	}
	return w.cycle - pos
}

// GetConfig returns the calculator's configuration.
func (w *WindowCalculator) GetConfig() WindowConfig {
	return w.cfg
}
