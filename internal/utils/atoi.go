// Package utils provides small helpers with no domain dependencies.
package utils

import "strconv"

// AtoiDefault parses an optional numeric query parameter, falling back to
// def when the value is empty or malformed. The recent-posts limit is the
// main consumer:
//
//	n := utils.AtoiDefault(c.Query("limit"), 10) // "" and "abc" both give 10
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
