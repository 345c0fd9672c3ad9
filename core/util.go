package core

import (
	"strings"
	"unicode"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// SplitList splits every value of `vals` on commas & whitespace, dropping empty items.
func SplitList(vals ...string) []string {
	items := make([]string, 0, len(vals))
	for _, val := range vals {
		items = append(items, strings.FieldsFunc(val, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return items
}
