package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CompareNatural orders strings case-insensitively with embedded digit runs
// compared by numeric value, so "ep2" < "ep10" and "Lesson 02" == "lesson 2"
// up to the final raw tie-break. It returns -1, 0, or +1.
func CompareNatural(a, b string) int {
	if c := compareChunks(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareChunks(a, b string) int {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if isDigit(ra) && isDigit(rb) {
			var da, db string
			da, a = splitDigits(a)
			db, b = splitDigits(b)
			if c := compareNumeric(da, db); c != 0 {
				return c
			}
			continue
		}
		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		a = a[na:]
		b = b[nb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit runs by value without overflow. Equal
// values with different zero padding compare equal here.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
