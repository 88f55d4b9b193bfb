package dtn

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/postalsys/muti-sim/internal/identity"
)

// ErrBandwidthExceeded is returned when a peer has spent its per-tick budget.
var ErrBandwidthExceeded = errors.New("bandwidth exceeded")

// epoch anchors synthetic tick time. Tick n is epoch + n seconds.
var epoch = time.Unix(0, 0).UTC()

// TickTime converts a tick to the synthetic instant the limiters see.
func TickTime(tick uint64) time.Time {
	return epoch.Add(time.Duration(tick) * time.Second)
}

// Meter limits the bytes each peer accepts per tick. Each peer gets a
// token bucket refilled at limit bytes per synthetic second with a burst of
// limit, so a full budget is available at every tick boundary and unused
// budget does not carry over.
type Meter struct {
	limit    int
	limiters map[identity.PeerID]*rate.Limiter
}

// NewMeter creates a meter. A limit of zero disables metering.
func NewMeter(bytesPerTick int) *Meter {
	return &Meter{
		limit:    bytesPerTick,
		limiters: make(map[identity.PeerID]*rate.Limiter),
	}
}

// Enabled reports whether the meter enforces a limit.
func (m *Meter) Enabled() bool {
	return m.limit > 0
}

// Limit returns the per-tick budget in bytes.
func (m *Meter) Limit() int {
	return m.limit
}

func (m *Meter) limiter(peer identity.PeerID) *rate.Limiter {
	l, ok := m.limiters[peer]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.limit), m.limit)
		m.limiters[peer] = l
	}
	return l
}

// Allow charges size bytes to peer at tick. It fails without charging if
// the remaining budget is too small.
func (m *Meter) Allow(peer identity.PeerID, tick uint64, size int) error {
	if !m.Enabled() {
		return nil
	}
	if !m.limiter(peer).AllowN(TickTime(tick), size) {
		return fmt.Errorf("%w: %s needs %d bytes at tick %d", ErrBandwidthExceeded, peer, size, tick)
	}
	return nil
}

// Fits reports whether peer could accept size bytes at tick without
// charging anything.
func (m *Meter) Fits(peer identity.PeerID, tick uint64, size int) bool {
	if !m.Enabled() {
		return true
	}
	return m.limiter(peer).TokensAt(TickTime(tick)) >= float64(size)
}

// Remaining returns the budget peer has left at tick.
func (m *Meter) Remaining(peer identity.PeerID, tick uint64) int {
	if !m.Enabled() {
		return 0
	}
	return int(m.limiter(peer).TokensAt(TickTime(tick)))
}

// Used returns the bytes peer has accepted during tick.
func (m *Meter) Used(peer identity.PeerID, tick uint64) int {
	if !m.Enabled() {
		return 0
	}
	return m.limit - m.Remaining(peer, tick)
}
