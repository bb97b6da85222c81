package utils

import "unicode/utf8"

// Truncate shortens s to its first n runes, appending a "..." marker when
// it cuts anything off (so a cut result is n+3 runes long). Used throughout logging and tool-result previews so
// a giant payload never floods a log line or a status message.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
