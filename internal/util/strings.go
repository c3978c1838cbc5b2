package util

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// A negative maxLen yields the empty string. Used to log reference and
// secret prefixes.
//
//	SafeTruncate("very-long-reference", 8) // "very-lon"
//	SafeTruncate("short", 10)              // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
