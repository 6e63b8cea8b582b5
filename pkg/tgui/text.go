package tgui

import "unicode/utf8"

// TruncRunes returns s truncated to at most n runes, with an ellipsis "…"
// appended when anything was cut. Used to keep mail subjects and sender
// names inside Telegram's message and button limits.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	// Single pass: remember the byte index after the n-th rune, and only
	// truncate if an (n+1)-th rune actually exists.
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}
