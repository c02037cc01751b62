package location

import (
	"strings"
	"testing"
)

func TestEqualOrderIndependent(t *testing.T) {
	a := Location{"page": "docs", "section": "intro", "line": 4}
	b := Location{"line": 4, "section": "intro", "page": "docs"}

	if !a.Equal(b) {
		t.Error("expected locations with same pairs to be equal")
	}
	if !b.Equal(a) {
		t.Error("expected equality to be symmetric")
	}
}

func TestEqualMismatches(t *testing.T) {
	tests := []struct {
		name string
		a, b Location
	}{
		{"different value", Location{"page": "a"}, Location{"page": "b"}},
		{"different key", Location{"page": "a"}, Location{"section": "a"}},
		{"subset", Location{"page": "a", "x": 1}, Location{"page": "a"}},
		{"nil vs non-empty", nil, Location{"page": "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Equal(tt.b) {
				t.Errorf("expected %v != %v", tt.a, tt.b)
			}
		})
	}
}

func TestEqualNumericTypes(t *testing.T) {
	// JSON decoding produces float64; locally built locations may hold ints.
	a := Location{"x": 10, "y": 20}
	b := Location{"x": float64(10), "y": float64(20)}
	if !a.Equal(b) {
		t.Error("expected int and float64 with same value to compare equal")
	}
}

func TestEqualNil(t *testing.T) {
	var a, b Location
	if !a.Equal(b) {
		t.Error("expected two nil locations to be equal")
	}
}

func TestMatchesPartial(t *testing.T) {
	base := Location{"page": "docs", MarkerKey: true}
	sub := Location{"page": "docs", MarkerKey: true, CursorXKey: 10.0, CursorYKey: 20.0}

	if !sub.Matches(base) {
		t.Error("expected sub-location to match its base")
	}
	if base.Matches(sub) {
		t.Error("expected base not to match a more specific sub-location")
	}
	if !sub.Matches(sub) {
		t.Error("expected matching to be reflexive")
	}
	if !sub.Matches(nil) {
		t.Error("expected empty matcher to match anything")
	}
}

func TestMergeBaseWins(t *testing.T) {
	sub := Location{CursorXKey: 5.0, MarkerKey: false, "page": "evil"}
	base := Location{MarkerKey: true, "page": "docs"}

	merged := sub.Merge(base)

	if merged[MarkerKey] != true {
		t.Error("expected marker key from base to win the conflict")
	}
	if merged["page"] != "docs" {
		t.Error("expected base page value to win the conflict")
	}
	if merged[CursorXKey] != 5.0 {
		t.Error("expected non-conflicting sub-location key to survive")
	}
	if sub[MarkerKey] != false {
		t.Error("expected merge not to mutate its receiver")
	}
}

func TestCanonicalStable(t *testing.T) {
	a := Location{"b": 2, "a": "x", "c": true}
	b := Location{"c": true, "a": "x", "b": 2}
	if a.Canonical() != b.Canonical() {
		t.Errorf("canonical forms differ: %s vs %s", a.Canonical(), b.Canonical())
	}
	if !strings.HasPrefix(a.Canonical(), `{"a":`) {
		t.Errorf("expected sorted keys, got %s", a.Canonical())
	}
}

func TestCompare(t *testing.T) {
	small := Location{"a": 1}
	big := Location{"a": 1, "b": 2}
	if Compare(small, big) >= 0 {
		t.Error("expected fewer keys to order first")
	}
	if Compare(big, big) != 0 {
		t.Error("expected identical locations to compare equal")
	}
}

func TestNormalize(t *testing.T) {
	l := Location{"s": "text", "n": 3, "b": true}
	got, err := l.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["n"] != float64(3) {
		t.Errorf("expected int coerced to float64, got %T", got["n"])
	}

	bad := Location{"nested": map[string]any{"x": 1}}
	if _, err := bad.Normalize(); err == nil {
		t.Error("expected error for nested value")
	}
}

func TestWithMarker(t *testing.T) {
	in := Location{"page": "docs", MarkerKey: "spoofed"}
	base := WithMarker(in)

	if base[MarkerKey] != true {
		t.Error("expected marker to override caller-supplied key")
	}
	if in[MarkerKey] != "spoofed" {
		t.Error("expected input location to be left untouched")
	}
	if WithMarker(nil)[MarkerKey] != true {
		t.Error("expected marker on empty base")
	}
}
