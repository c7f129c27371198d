package utils

import "testing"

func TestMatchSegment(t *testing.T) {
	cases := []struct {
		granted, requested string
		want               bool
	}{
		{"*", "bookings", true},
		{"*", "*", true},
		{"bookings", "bookings", true},
		{"Bookings", "bookings", true},
		{"bookings", "rooms", false},
		{"bookings", "*", false}, // request-side wildcard not honored
		{"", "", true},
	}
	for _, c := range cases {
		if got := MatchSegment(c.granted, c.requested); got != c.want {
			t.Errorf("MatchSegment(%q, %q) = %v, want %v", c.granted, c.requested, got, c.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"bookings.read.property", "*.*.property", true},
		{"bookings.read.property", "bookings.*.property", true},
		{"bookings.read.property", "*.read.*", true},
		{"bookings.read.property", "rooms.*.property", false},
		{"bookings.read", "*.*.property", false}, // segment counts must agree
	}
	for _, c := range cases {
		if got := MatchPattern(c.value, c.pattern); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}
