package etl

import (
	"strings"
	"unicode"
)

// Underscore normalizes name into a lower-case identifier made of letters,
// digits and single underscores, so "Life expectancy (years)" becomes
// "life_expectancy_years". Runs of anything else collapse into one underscore
// and leading/trailing underscores are dropped. A "%" is spelled "pct".
// With camelToSnake, a lower-to-upper case
// transition also starts a new word, so "GdpPerCapita" becomes
// "gdp_per_capita".
func Underscore(name string, camelToSnake bool) string {
	var sb strings.Builder
	sb.Grow(len(name))
	pendingSep := false
	var prev rune
	for _, r := range name {
		switch {
		case r == '%':
			if sb.Len() > 0 {
				sb.WriteByte('_')
			}
			sb.WriteString("pct")
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if camelToSnake && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				pendingSep = true
			}
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
		prev = r
	}
	return sb.String()
}

// joinName builds a wide column name from a variable and its dimension
// values, e.g. population__sex_female__age_0_4.
func joinName(parts ...string) string {
	return strings.Join(parts, "__")
}
