package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Éloïse" -> "Eloise").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Filter returns the students whose id or name contains query, ignoring case and accents.
// An empty query returns students unchanged.
func Filter(students []Student, query string) []Student {
	q := NormalizeName(query)
	if q == "" {
		return students
	}
	var out []Student
	for _, s := range students {
		if strings.Contains(strings.ToLower(s.StudentID), q) ||
			strings.Contains(NormalizeName(s.FirstName+" "+s.LastName), q) ||
			strings.Contains(NormalizeName(s.LastName+" "+s.FirstName), q) {
			out = append(out, s)
		}
	}
	return out
}
