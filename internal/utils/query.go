// Package utils provides small, generic helpers independent of any
// domain logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int, returning def when the string is
// empty or unparsable. Handlers use it for optional numeric query parameters
// such as the history limit.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
