package observability

import (
	"strings"
	"unicode"
)

// sanitizeString drops control characters (tab excepted) and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// ShortID keeps the first 12 characters of a session or cart id so log lines can be
// correlated without carrying the whole bearer-like value.
func ShortID(id string) string {
	cleaned := []rune(sanitizeString(id, 64))
	if len(cleaned) <= 12 {
		return string(cleaned)
	}
	return string(cleaned[:12]) + "…"
}
