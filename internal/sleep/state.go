// Package sleep tracks which simulated peers are reachable on each tick.
//
// Two modes are supported. In basic mode every peer is either online or
// offline and flips between the two with configured per-tick probabilities.
// In duty-cycle mode a peer's power state is a pure function of the tick and
// a phase offset derived from its ID, cycling Active -> PreSleep -> Sleeping
// -> Waking -> Active. Either mode can be overridden per peer by pinning.
package sleep

import "errors"

// PowerState is the power state of a peer.
type PowerState uint8

const (
	// Active peers can send and receive.
	Active PowerState = iota
	// PreSleep peers are finishing up; they receive but do not originate.
	PreSleep
	// Sleeping peers neither send nor receive.
	Sleeping
	// Waking peers are initializing and are not yet reachable.
	Waking
)

// String returns a human-readable name for the state.
func (s PowerState) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case PreSleep:
		return "PRE_SLEEP"
	case Sleeping:
		return "SLEEPING"
	case Waking:
		return "WAKING"
	default:
		return "UNKNOWN"
	}
}

// CanSend reports whether a peer in this state may forward packets.
func (s PowerState) CanSend() bool {
	return s == Active
}

// CanReceive reports whether a peer in this state accepts packets.
// A peer that can receive is considered online.
func (s PowerState) CanReceive() bool {
	return s == Active || s == PreSleep
}

// MarshalText implements encoding.TextMarshaler.
func (s PowerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrUnknownPeer is returned for peers the schedule was not built with.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrInvalidWindow is returned when a duty cycle has no active window.
	ErrInvalidWindow = errors.New("duty cycle requires a non-zero active window")
)
