package mongoc

import "strings"

// likeToRegex translates a SQL LIKE pattern to an anchored regular
// expression: % becomes .*, _ becomes ., and every regex metacharacter in
// the pattern is escaped so it matches literally.
func likeToRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		case '\\', '.', '+', '*', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')
	return b.String()
}
