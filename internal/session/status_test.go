package session

import (
	"encoding/json"
	"testing"
)

func TestStatusMarshalJSON(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusUnknown, `"unknown"`},
		{Active, `"active"`},
		{Stale, `"stale"`},
		{Ended, `"ended"`},
		{Dismissed, `"dismissed"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.status)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.status, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.status, data, tt.expected)
		}
	}
}

func TestStatusUnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{`"active"`, Active},
		{`"stale"`, Stale},
		{`"ended"`, Ended},
		{`"dismissed"`, Dismissed},
		{`"pending"`, StatusUnknown},
	}

	for _, tt := range tests {
		var s Status
		if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.input, err)
			continue
		}
		if s != tt.expected {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, s, tt.expected)
		}
	}
}

func TestStatusUnmarshalRejectsNonString(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`3`), &s); err == nil {
		t.Error("expected error for numeric status")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[Status]bool{Ended: true, Dismissed: true}
	for _, s := range []Status{StatusUnknown, Active, Stale, Ended, Dismissed} {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%v.IsTerminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestStatusStringOutOfRange(t *testing.T) {
	if got := Status(42).String(); got != "unknown" {
		t.Errorf("Status(42).String() = %q, want %q", got, "unknown")
	}
}

type deliveryAttributes struct{}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want Kind
	}{
		{"named struct", deliveryAttributes{}, "deliveryAttributes"},
		{"pointer", &deliveryAttributes{}, "deliveryAttributes"},
		{"double pointer", func() **deliveryAttributes { p := &deliveryAttributes{}; return &p }(), "deliveryAttributes"},
		{"unnamed", map[string]int{}, "map[string]int"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.v); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnapshotReportable(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{"active with token", Snapshot{Status: Active, Token: []byte{0xde, 0xad}}, true},
		{"active empty token", Snapshot{Status: Active, Token: []byte{}}, true},
		{"active no token", Snapshot{Status: Active}, false},
		{"stale with token", Snapshot{Status: Stale, Token: []byte{1}}, false},
		{"ended with token", Snapshot{Status: Ended, Token: []byte{1}}, false},
	}
	for _, tt := range tests {
		if got := tt.snap.Reportable(); got != tt.want {
			t.Errorf("%s: Reportable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSnapshotDescribeOmitsToken(t *testing.T) {
	score := 0.5
	snap := Snapshot{ID: "abc", Kind: "Delivery", Status: Active, Token: []byte{0xde, 0xad}, HasToken: true, RelevanceScore: &score}
	got := snap.Describe()
	want := "Session<Delivery>(id: abc, status: active, staleAt: none, relevance: 0.5, token: present)"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestPropertiesClone(t *testing.T) {
	var nilProps Properties
	if nilProps.Clone() != nil {
		t.Error("Clone of nil should stay nil")
	}
	p := Properties{"a": 1}
	c := p.Clone()
	c["a"] = 2
	if p["a"] != 1 {
		t.Error("Clone shares storage with original")
	}
}
