package util

import "strings"

// LikePattern escapes the LIKE wildcards in text and wraps it for a substring
// match. Queries using it must declare ESCAPE '\'.
func LikePattern(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte('%')
	for _, r := range text {
		if r == '%' || r == '_' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
