package common

import "strings"

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NormalizeCity canonicalizes free-text city input for cache keying.
func NormalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
