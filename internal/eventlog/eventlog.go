// Package eventlog records everything observable that happens during a
// simulation run. Entries are immutable once appended and are ordered by
// tick, then by insertion.
package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/postalsys/muti-sim/internal/dtn"
	"github.com/postalsys/muti-sim/internal/identity"
)

// Type identifies the kind of an event.
type Type uint8

const (
	// Awake is emitted when a peer becomes able to receive.
	Awake Type = iota
	// Sleep is emitted when a peer stops being able to receive.
	Sleep
	// Send is emitted when a packet is admitted at its source.
	Send
	// Relay is emitted when a packet moves to an intermediate peer.
	Relay
	// Delivered is emitted when a packet reaches its destination.
	Delivered
	// BackProp is emitted for each hop a delivery confirmation travels back.
	BackProp
	// Dropped is emitted when a packet is resolved as dropped.
	Dropped
	// PQSignatureCreated is emitted when an invite is signed.
	PQSignatureCreated
	// PQSignatureVerified is emitted when an invite signature is checked.
	PQSignatureVerified
	// KEMEncapsulation is emitted when a peer encapsulates a secret for another.
	KEMEncapsulation
	// KEMDecapsulation is emitted when a peer decapsulates a ciphertext.
	KEMDecapsulation
	// InviteCreated is emitted when an invite handshake starts.
	InviteCreated
	// InviteAccepted is emitted when the invitee joins the interface.
	InviteAccepted
	// InviteFailed is emitted when a handshake step fails.
	InviteFailed
)

var typeNames = [...]string{
	Awake:               "awake",
	Sleep:               "sleep",
	Send:                "send",
	Relay:               "relay",
	Delivered:           "delivered",
	BackProp:            "backprop",
	Dropped:             "dropped",
	PQSignatureCreated:  "pq_signature_created",
	PQSignatureVerified: "pq_signature_verified",
	KEMEncapsulation:    "kem_encapsulation",
	KEMDecapsulation:    "kem_decapsulation",
	InviteCreated:       "invite_created",
	InviteAccepted:      "invite_accepted",
	InviteFailed:        "invite_failed",
}

// Types lists every event type in declaration order.
func Types() []Type {
	out := make([]Type, len(typeNames))
	for i := range typeNames {
		out[i] = Type(i)
	}
	return out
}

// String returns the snake_case name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	for i, name := range typeNames {
		if name == string(text) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// Event is a single log entry. Fields that do not apply to a type are left
// at their zero value.
type Event struct {
	Seq  uint64 `json:"seq"`
	Type Type   `json:"type"`
	Tick uint64 `json:"tick"`

	// Peer is the subject of state and PQ events.
	Peer identity.PeerID `json:"peer,omitempty"`
	From identity.PeerID `json:"from,omitempty"`
	Via  identity.PeerID `json:"via,omitempty"`
	To   identity.PeerID `json:"to,omitempty"`

	PacketID identity.PacketID `json:"packet_id,omitzero"`
	Reason   dtn.DropReason    `json:"reason,omitempty"`
	// Detail carries free-form reasons such as invite failures.
	Detail string `json:"detail,omitempty"`
	Size   int    `json:"size,omitempty"`
	Hops   int    `json:"hops,omitempty"`

	InterfaceID string `json:"interface_id,omitempty"`
	LatencyUs   uint64 `json:"latency_us,omitempty"`
	Success     *bool  `json:"success,omitempty"`
}

// Succeeded reports the outcome of PQ events. Events without an outcome
// report false.
func (e Event) Succeeded() bool {
	return e.Success != nil && *e.Success
}

// Outcome returns a pointer suitable for Event.Success.
func Outcome(ok bool) *bool {
	return &ok
}

// String renders the event on one line.
func (e Event) String() string {
	s := fmt.Sprintf("[%d] %s", e.Tick, e.Type)
	switch e.Type {
	case Relay:
		s += fmt.Sprintf(" %s: %s -> %s -> %s", e.PacketID, e.From, e.Via, e.To)
	case Send, Delivered, BackProp:
		s += fmt.Sprintf(" %s: %s -> %s", e.PacketID, e.From, e.To)
	case Dropped:
		s += fmt.Sprintf(" %s at %s: %s", e.PacketID, e.Peer, e.Reason)
	case Awake, Sleep:
		s += " " + e.Peer.String()
	case InviteCreated:
		s += fmt.Sprintf(" %s: %s -> %s", e.InterfaceID, e.From, e.To)
	case InviteAccepted:
		s += fmt.Sprintf(" %s: %s", e.InterfaceID, e.Peer)
	case InviteFailed:
		s += fmt.Sprintf(" %s: %s (%s)", e.InterfaceID, e.Peer, e.Detail)
	default:
		s += fmt.Sprintf(" %s %dus", e.Peer, e.LatencyUs)
		if e.Success != nil {
			s += fmt.Sprintf(" ok=%t", *e.Success)
		}
	}
	return s
}

// Log is an append-only event arena indexed by type and by packet. It is
// owned by a single simulation and is not safe for concurrent use.
type Log struct {
	events   []Event
	byType   map[Type][]int
	byPacket map[identity.PacketID][]int
}

// New creates an empty log.
func New() *Log {
	return &Log{
		byType:   make(map[Type][]int),
		byPacket: make(map[identity.PacketID][]int),
	}
}

// Append assigns the next sequence number to e, stores it and returns the
// stored copy.
func (l *Log) Append(e Event) Event {
	e.Seq = uint64(len(l.events))
	idx := len(l.events)
	l.events = append(l.events, e)
	l.byType[e.Type] = append(l.byType[e.Type], idx)
	if !e.PacketID.IsZero() {
		l.byPacket[e.PacketID] = append(l.byPacket[e.PacketID], idx)
	}
	return e
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.events)
}

// At returns the i-th event.
func (l *Log) At(i int) (Event, bool) {
	if i < 0 || i >= len(l.events) {
		return Event{}, false
	}
	return l.events[i], true
}

// All returns every event in order.
func (l *Log) All() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// ByType returns the events of type t in order.
func (l *Log) ByType(t Type) []Event {
	return l.collect(l.byType[t])
}

// ForPacket returns the events that mention packet id in order.
func (l *Log) ForPacket(id identity.PacketID) []Event {
	return l.collect(l.byPacket[id])
}

// Count returns the number of events of type t.
func (l *Log) Count(t Type) int {
	return len(l.byType[t])
}

// Since returns the events with a tick at or after tick.
func (l *Log) Since(tick uint64) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Tick >= tick {
			out = append(out, e)
		}
	}
	return out
}

func (l *Log) collect(idx []int) []Event {
	out := make([]Event, len(idx))
	for i, j := range idx {
		out[i] = l.events[j]
	}
	return out
}

// MarshalJSON encodes the log as an array of events.
func (l *Log) MarshalJSON() ([]byte, error) {
	if l.events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.events)
}

// UnmarshalJSON rebuilds the log and its indexes from an array of events.
func (l *Log) UnmarshalJSON(data []byte) error {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	*l = *New()
	for _, e := range events {
		l.Append(e)
	}
	return nil
}
