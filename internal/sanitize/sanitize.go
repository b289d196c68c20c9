// Package sanitize normalizes user-supplied network names before they are
// embedded in output file names and stored alongside results.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum allowed length for a network name.
const MaxNameLength = 80

var (
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// NetworkName keeps letters, digits, '.', '-' and '_', turns whitespace into
// '_', and drops everything else. Leading dots and hyphens are stripped so
// the result is never a hidden file or a flag. An empty result becomes
// "network".
func NetworkName(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.TrimLeft(s, ".-")

	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	if s == "" {
		return "network"
	}
	return s
}
