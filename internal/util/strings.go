package util

import "strings"

func IsBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// TrimmedNonEmpty trims s and reports whether anything is left.
func TrimmedNonEmpty(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, t != ""
}
