package livecheck

import "strings"

// Normalize trims whitespace and strips a leading "v" or "V" that
// precedes a digit. "v1.2.3" becomes "1.2.3"; "version-2" is unchanged.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && s[1] >= '0' && s[1] <= '9' {
		s = s[1:]
	}
	return s
}
