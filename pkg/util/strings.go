package util

import "strconv"

// ParseIntDefault parses s as an int, returning def when s is empty or
// not a number.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// ParseBoolDefault parses s as a bool ("true", "1", "f", ...), returning
// def when s is empty or unrecognized.
func ParseBoolDefault(s string, def bool) bool {
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return def
}
