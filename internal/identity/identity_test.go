package identity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNth(t *testing.T) {
	tests := []struct {
		n    int
		want PeerID
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{-1, ZeroID},
	}

	for _, tt := range tests {
		if got := Nth(tt.n); got != tt.want {
			t.Errorf("Nth(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestLetters(t *testing.T) {
	ids := Letters(3)
	if len(ids) != 3 {
		t.Fatalf("len(Letters(3)) = %d, want 3", len(ids))
	}
	if ids[0] != "A" || ids[1] != "B" || ids[2] != "C" {
		t.Errorf("Letters(3) = %v, want [A B C]", ids)
	}
	if Letters(0) != nil {
		t.Error("Letters(0) should be nil")
	}
}

func TestLess_MatchesNthOrder(t *testing.T) {
	for i := 0; i < 800; i++ {
		a, b := Nth(i), Nth(i+1)
		if !a.Less(b) {
			t.Fatalf("%s.Less(%s) = false, want true", a, b)
		}
		if b.Less(a) {
			t.Fatalf("%s.Less(%s) = true, want false", b, a)
		}
	}
	if Compare("Z", "AA") != -1 {
		t.Error("Compare(Z, AA) should be -1")
	}
	if Compare("B", "B") != 0 {
		t.Error("Compare(B, B) should be 0")
	}
}

func TestParsePeerID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"A", false},
		{" AB ", false},
		{"", true},
		{"a", true},
		{"A1", true},
	}

	for _, tt := range tests {
		_, err := ParsePeerID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePeerID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidPeerID) {
			t.Errorf("ParsePeerID(%q) error should wrap ErrInvalidPeerID", tt.input)
		}
	}
}

func TestPacketID_RoundTrip(t *testing.T) {
	id := PacketID{Source: "C", Sequence: 42}
	if id.String() != "C#42" {
		t.Errorf("String() = %q, want C#42", id.String())
	}

	parsed, err := ParsePacketID("C#42")
	if err != nil {
		t.Fatalf("ParsePacketID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParsePacketID() = %v, want %v", parsed, id)
	}

	data, err := json.Marshal(map[string]PacketID{"id": id})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `{"id":"C#42"}` {
		t.Errorf("json = %s", data)
	}
}

func TestParsePacketID_Invalid(t *testing.T) {
	for _, s := range []string{"", "C42", "c#1", "C#x"} {
		if _, err := ParsePacketID(s); !errors.Is(err, ErrInvalidPacketID) {
			t.Errorf("ParsePacketID(%q) error = %v, want ErrInvalidPacketID", s, err)
		}
	}
}
