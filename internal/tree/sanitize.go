package tree

import (
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest path segment Sanitize will return, in bytes.
const MaxNameLength = 255

var nameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// Sanitize turns a dashboard, rule or datasource title into a path segment
// safe on common filesystems. It never fails; blank input yields "".
func Sanitize(name string) string {
	return SanitizeN(name, MaxNameLength)
}

// SanitizeN is Sanitize with an explicit length bound. The result is cut on a
// rune boundary so it stays valid UTF-8.
func SanitizeN(name string, max int) string {
	cleaned := strings.TrimSpace(nameReplacer.Replace(name))
	if max < 0 {
		max = 0
	}
	if len(cleaned) <= max {
		return cleaned
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}
