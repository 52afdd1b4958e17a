package filter

import "testing"

func TestNameMatcher_Match(t *testing.T) {
	m, err := NewNameMatcher(DefaultKeepMarkers, []string{`^Clamav\.Test\.`})
	if err != nil {
		t.Fatalf("NewNameMatcher() error = %v", err)
	}

	tests := []struct {
		name     string
		sigName  string
		expected bool
	}{
		{"Upper case marker", "EICAR-Test-Signature", true},
		{"Mixed case marker", "Eicar-Test-Signature", true},
		{"Marker inside name", "Win.Test.EICAR_HDB-1", true},
		{"Regex match", "Clamav.Test.File-6", true},
		{"Regex anchored", "Win.Clamav.Test.File-6", false},
		{"Unrelated", "Win.Trojan.Agent-1", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.sigName); got != tt.expected {
				t.Errorf("Match(%q) = %v, want %v", tt.sigName, got, tt.expected)
			}
		})
	}
}

func TestNameMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewNameMatcher(nil, []string{`[invalid(regex`}); err == nil {
		t.Error("NewNameMatcher() with invalid regex should return error")
	}
}

func TestNameMatcher_Empty(t *testing.T) {
	m, err := NewNameMatcher([]string{"", "  "}, nil)
	if err != nil {
		t.Fatalf("NewNameMatcher() error = %v", err)
	}
	if !m.Empty() {
		t.Error("Empty() = false, want true")
	}
	if m.Match("EICAR") {
		t.Error("empty matcher matched")
	}
}

func TestNameMatcher_AsKeepFunc(t *testing.T) {
	m, _ := NewNameMatcher([]string{"eicar"}, nil)
	p, err := NewPolicy(Options{ExcludePlatforms: []string{"Win"}, AlwaysKeep: m.Match})
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	if !p.AlwaysKeep("Win.Test.EICAR_HDB-1") {
		t.Error("AlwaysKeep() = false, want true")
	}
}
