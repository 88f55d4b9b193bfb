// Package dtn holds the store-and-forward primitives of the simulator:
// packets and their terminal outcomes, per-peer pending buffers, and the
// per-tick bandwidth meter.
package dtn

import "fmt"

// DropReason explains why a packet was dropped.
type DropReason uint8

const (
	// ReasonNone is the zero value for packets that were not dropped.
	ReasonNone DropReason = iota
	// SenderOffline means the source never came online within its retry budget.
	SenderOffline
	// MessageTimeout means the deadline passed before delivery.
	MessageTimeout
	// TtlExpired means the route is longer than the hop limit.
	TtlExpired
	// NoRoute means source and destination are not connected.
	NoRoute
	// SizeExceeded means the payload is larger than the message size cap.
	SizeExceeded
	// BandwidthExceeded means the accepting peer had no bandwidth left this tick.
	BandwidthExceeded
	// BufferFull means the accepting peer already holds its maximum packet count.
	BufferFull
	// BufferOverflow means the packet would push the accepting peer past its byte cap.
	BufferOverflow
)

var reasonNames = map[DropReason]string{
	ReasonNone:        "none",
	SenderOffline:     "sender_offline",
	MessageTimeout:    "message_timeout",
	TtlExpired:        "ttl_expired",
	NoRoute:           "no_route",
	SizeExceeded:      "size_exceeded",
	BandwidthExceeded: "bandwidth_exceeded",
	BufferFull:        "buffer_full",
	BufferOverflow:    "buffer_overflow",
}

// DropReasons lists every real drop reason in declaration order.
func DropReasons() []DropReason {
	return []DropReason{
		SenderOffline,
		MessageTimeout,
		TtlExpired,
		NoRoute,
		SizeExceeded,
		BandwidthExceeded,
		BufferFull,
		BufferOverflow,
	}
}

// String returns the snake_case name of the reason.
func (r DropReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}

// IsConstraint reports whether the reason comes from a resource cap rather
// than from connectivity or time.
func (r DropReason) IsConstraint() bool {
	switch r {
	case SizeExceeded, BandwidthExceeded, BufferFull, BufferOverflow:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r DropReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *DropReason) UnmarshalText(text []byte) error {
	for k, v := range reasonNames {
		if v == string(text) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown drop reason %q", text)
}
