package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// SafeFilename reduces name to a portable file name: accents are stripped,
// every other unsafe rune (path separators, spaces) becomes an underscore
// and leading dots are removed.
func SafeFilename(name string) string {
	var sb strings.Builder
	for _, r := range Normalize(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from decomposition
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return strings.TrimLeft(sb.String(), ".")
}
