package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultKeepMarkers are matched case-insensitively against signature names
// by the default always-keep rule
var DefaultKeepMarkers = []string{"eicar"}

// NameMatcher matches signature names against markers and regular
// expressions. Its Match method is a KeepFunc.
type NameMatcher struct {
	markers  []string
	patterns []*regexp.Regexp
}

// NewNameMatcher creates a matcher. Markers match as case-insensitive
// substrings; patterns are Go regular expressions matched against the full
// name.
func NewNameMatcher(markers []string, patterns []string) (*NameMatcher, error) {
	m := &NameMatcher{}
	for _, marker := range markers {
		if marker = strings.TrimSpace(marker); marker != "" {
			m.markers = append(m.markers, strings.ToLower(marker))
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid always-keep pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether name hits any marker or pattern
func (m *NameMatcher) Match(name string) bool {
	if name == "" {
		return false
	}

	if len(m.markers) > 0 {
		lower := strings.ToLower(name)
		for _, marker := range m.markers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}

	for _, re := range m.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher can never match
func (m *NameMatcher) Empty() bool {
	return len(m.markers) == 0 && len(m.patterns) == 0
}
