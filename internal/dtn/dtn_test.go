package dtn

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/postalsys/muti-sim/internal/identity"
)

func pid(src identity.PeerID, seq uint64) identity.PacketID {
	return identity.PacketID{Source: src, Sequence: seq}
}

// ============================================================================
// DropReason Tests
// ============================================================================

func TestDropReason_String(t *testing.T) {
	tests := []struct {
		reason DropReason
		want   string
	}{
		{SenderOffline, "sender_offline"},
		{MessageTimeout, "message_timeout"},
		{TtlExpired, "ttl_expired"},
		{NoRoute, "no_route"},
		{SizeExceeded, "size_exceeded"},
		{BandwidthExceeded, "bandwidth_exceeded"},
		{BufferFull, "buffer_full"},
		{BufferOverflow, "buffer_overflow"},
		{DropReason(200), "unknown(200)"},
	}

	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDropReason_TextRoundTrip(t *testing.T) {
	for _, r := range DropReasons() {
		text, _ := r.MarshalText()
		var back DropReason
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) error = %v", text, err)
		}
		if back != r {
			t.Errorf("round trip %s = %s", r, back)
		}
	}

	var r DropReason
	if err := r.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) should fail")
	}
}

func TestDropReason_IsConstraint(t *testing.T) {
	constraint := map[DropReason]bool{
		SizeExceeded:      true,
		BandwidthExceeded: true,
		BufferFull:        true,
		BufferOverflow:    true,
	}
	for _, r := range DropReasons() {
		if r.IsConstraint() != constraint[r] {
			t.Errorf("%s.IsConstraint() = %v", r, r.IsConstraint())
		}
	}
}

// ============================================================================
// Packet Tests
// ============================================================================

func TestPacket_Lifecycle(t *testing.T) {
	p := NewPacket(pid("A", 0), "C", 100, 5, 20)

	if p.Deadline != 25 {
		t.Errorf("Deadline = %d, want 25", p.Deadline)
	}
	if p.Status != StatusQueued || p.Holder != "A" {
		t.Fatalf("new packet: status %s holder %s", p.Status, p.Holder)
	}
	if err := p.Route([]identity.PeerID{"B", "C"}); err == nil {
		t.Error("Route not starting at holder should fail")
	}
	if err := p.Route([]identity.PeerID{"A", "B", "C"}); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if p.Status != StatusInFlight {
		t.Errorf("Status = %s, want IN_FLIGHT", p.Status)
	}

	prev, err := p.Advance()
	if err != nil || prev != "A" || p.Holder != "B" {
		t.Fatalf("Advance() = %s, %v; holder %s", prev, err, p.Holder)
	}
	if p.AtDestination() {
		t.Error("should not be at destination after one hop")
	}
	_, _ = p.Advance()
	if !p.AtDestination() || p.Hops() != 2 {
		t.Errorf("after two hops: at dest %v, hops %d", p.AtDestination(), p.Hops())
	}
	if _, err := p.Advance(); err == nil {
		t.Error("Advance past destination should fail")
	}

	if err := p.Deliver(9); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if p.Latency() != 4 {
		t.Errorf("Latency() = %d, want 4", p.Latency())
	}
	if err := p.Drop(MessageTimeout, 10); !errors.Is(err, ErrTerminal) {
		t.Errorf("Drop after Deliver error = %v, want ErrTerminal", err)
	}
	if err := p.Deliver(10); !errors.Is(err, ErrTerminal) {
		t.Errorf("second Deliver error = %v, want ErrTerminal", err)
	}
}

func TestPacket_Expired(t *testing.T) {
	p := NewPacket(pid("A", 1), "B", 1, 0, 20)
	if p.Expired(19) {
		t.Error("should not be expired at tick 19")
	}
	if !p.Expired(20) {
		t.Error("should be expired at tick 20")
	}

	forever := NewPacket(pid("A", 2), "B", 1, 7, 0)
	if forever.Expired(1 << 40) {
		t.Error("zero timeout should never expire")
	}

	// created + timeout would wrap around; the deadline saturates instead.
	huge := NewPacket(pid("A", 4), "B", 1, 3, math.MaxUint64)
	if huge.Deadline != math.MaxUint64 {
		t.Errorf("Deadline = %d, want MaxUint64", huge.Deadline)
	}
	if huge.Expired(4) {
		t.Error("huge timeout should not expire on the next tick")
	}
	edge := NewPacket(pid("A", 5), "B", 1, 3, math.MaxUint64-3)
	if edge.Deadline != math.MaxUint64 {
		t.Errorf("Deadline = %d, want MaxUint64", edge.Deadline)
	}
}

func TestPacket_CloneAndJSON(t *testing.T) {
	p := NewPacket(pid("A", 3), "B", 64, 0, 10)
	_ = p.Route([]identity.PeerID{"A", "B"})
	c := p.Clone()
	c.Remaining[0] = "Z"
	if p.Remaining[0] != "B" {
		t.Error("Clone should not share Remaining")
	}

	_ = p.Drop(NoRoute, 1)
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	for _, want := range []string{`"id":"A#3"`, `"status":"DROPPED"`, `"reason":"no_route"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("json missing %s: %s", want, data)
		}
	}
}

// ============================================================================
// Buffer Tests
// ============================================================================

func TestBuffers_Unlimited(t *testing.T) {
	b := NewBuffers(BufferLimits{})
	for i := uint64(0); i < 100; i++ {
		if err := b.Admit("A", pid("A", i), 1000); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
	if b.Len("A") != 100 || b.Bytes("A") != 100000 {
		t.Errorf("Len = %d, Bytes = %d", b.Len("A"), b.Bytes("A"))
	}
}

func TestBuffers_Limits(t *testing.T) {
	tests := []struct {
		name    string
		limits  BufferLimits
		sizes   []int
		wantErr error
	}{
		{"count cap", BufferLimits{MaxMessages: 2}, []int{1, 1, 1}, ErrBufferFull},
		{"byte cap", BufferLimits{MaxBytes: 100}, []int{60, 50}, ErrBufferOverflow},
		{"count before bytes", BufferLimits{MaxMessages: 1, MaxBytes: 10}, []int{10, 50}, ErrBufferFull},
		{"exact fit", BufferLimits{MaxMessages: 2, MaxBytes: 100}, []int{50, 50}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffers(tt.limits)
			var err error
			for i, size := range tt.sizes {
				if err = b.Admit("B", pid("A", uint64(i)), size); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuffers_Remove(t *testing.T) {
	b := NewBuffers(BufferLimits{MaxMessages: 1})
	id := pid("A", 0)

	_ = b.Admit("B", id, 10)
	if err := b.Admit("B", id, 10); err != nil {
		t.Errorf("re-admitting a held packet error = %v", err)
	}
	if err := b.Admit("B", pid("A", 1), 10); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Admit() error = %v, want ErrBufferFull", err)
	}
	if !b.Remove("B", id) {
		t.Error("Remove() = false for held packet")
	}
	if b.Remove("B", id) {
		t.Error("Remove() = true for released packet")
	}
	if b.Len("B") != 0 || b.Bytes("B") != 0 || b.Total() != 0 {
		t.Errorf("after Remove: Len %d Bytes %d Total %d", b.Len("B"), b.Bytes("B"), b.Total())
	}
	if err := b.Admit("B", pid("A", 1), 10); err != nil {
		t.Errorf("Admit after Remove error = %v", err)
	}
}

// ============================================================================
// Meter Tests
// ============================================================================

func TestMeter_Disabled(t *testing.T) {
	m := NewMeter(0)
	if m.Enabled() {
		t.Error("zero limit should disable the meter")
	}
	if err := m.Allow("A", 1, 1<<30); err != nil {
		t.Errorf("Allow() error = %v", err)
	}
}

func TestMeter_FitsDoesNotCharge(t *testing.T) {
	m := NewMeter(100)
	for range 3 {
		if !m.Fits("A", 1, 80) {
			t.Fatal("Fits(80) = false with a full budget")
		}
	}
	if m.Used("A", 1) != 0 {
		t.Errorf("Used() = %d, want 0", m.Used("A", 1))
	}
	if err := m.Allow("A", 1, 80); err != nil {
		t.Fatalf("Allow(80) error = %v", err)
	}
	if m.Fits("A", 1, 30) {
		t.Error("Fits(30) = true with 20 bytes left")
	}
	if !NewMeter(0).Fits("A", 1, 1<<30) {
		t.Error("disabled meter should fit anything")
	}
}

func TestMeter_PerTickBudget(t *testing.T) {
	m := NewMeter(100)

	if err := m.Allow("A", 1, 60); err != nil {
		t.Fatalf("Allow(60) error = %v", err)
	}
	if err := m.Allow("A", 1, 50); !errors.Is(err, ErrBandwidthExceeded) {
		t.Errorf("Allow(50) error = %v, want ErrBandwidthExceeded", err)
	}
	if m.Used("A", 1) != 60 {
		t.Errorf("Used() = %d, want 60 (failed charge must not count)", m.Used("A", 1))
	}
	if err := m.Allow("A", 1, 40); err != nil {
		t.Errorf("Allow(40) error = %v", err)
	}
	if err := m.Allow("B", 1, 100); err != nil {
		t.Errorf("other peer Allow(100) error = %v", err)
	}

	// Budget is fully restored at the next tick.
	if m.Remaining("A", 2) != 100 {
		t.Errorf("Remaining at next tick = %d, want 100", m.Remaining("A", 2))
	}
	if err := m.Allow("A", 2, 100); err != nil {
		t.Errorf("Allow at next tick error = %v", err)
	}

	// Idle ticks do not bank extra budget.
	if m.Remaining("A", 10) != 100 {
		t.Errorf("Remaining after idle ticks = %d, want 100", m.Remaining("A", 10))
	}
	if err := m.Allow("A", 10, 101); !errors.Is(err, ErrBandwidthExceeded) {
		t.Errorf("Allow above limit error = %v, want ErrBandwidthExceeded", err)
	}
}
