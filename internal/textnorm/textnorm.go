// Package textnorm folds free text (sheet names, category labels) into stable
// ASCII keys so accented and unaccented spellings compare equal.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// fold decomposes s with the given form and drops every rune outside ASCII,
// which removes combining marks along with anything that has no ASCII base.
func fold(form norm.Form, s string) string {
	t := transform.Chain(form, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases s, strips diacritics and trims surrounding whitespace.
// It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(fold(norm.NFD, s)))
}

// Slug normalizes s and replaces each run of characters outside [a-z0-9]
// with a single underscore, trimming underscores at both ends.
func Slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(Normalize(s), "_"), "_")
}

// CollectionName derives a persistence-safe identifier from a sheet name.
//
//	"4. FORMACIÓN X REGIONAL" -> "4_formacion_x_regional"
func CollectionName(sheet string) string {
	s := strings.ToLower(fold(norm.NFKD, sheet))
	return strings.Trim(nonSlug.ReplaceAllString(s, "_"), "_")
}
