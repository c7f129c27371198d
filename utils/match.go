// Package utils holds small matching helpers shared by the engine packages.
package utils

import "strings"

// Wildcard matches any resource or action segment in a permission pattern.
const Wildcard = "*"

// MatchSegment reports whether a granted resource/action segment covers the
// requested one. A grant-side "*" covers everything; otherwise the comparison
// is an exact, case-insensitive match. Wildcards on the requested side are
// not honored: requests must name a concrete resource and action.
func MatchSegment(granted, requested string) bool {
	if granted == Wildcard {
		return true
	}
	return strings.EqualFold(granted, requested)
}

// MatchPattern matches a dotted value against a dotted pattern where any
// segment of the pattern may be "*". Segment counts must agree.
func MatchPattern(value, pattern string) bool {
	vParts := strings.Split(value, ".")
	pParts := strings.Split(pattern, ".")
	if len(vParts) != len(pParts) {
		return false
	}
	for i := range pParts {
		if !MatchSegment(pParts[i], vParts[i]) {
			return false
		}
	}
	return true
}
