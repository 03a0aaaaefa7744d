// Package strings holds the inflection helpers used to derive storage key names
// from document type and relation names.
package strings

import (
	"strings"
	"unicode"
)

// irregular singular forms that the suffix rules below get wrong
var irregular = map[string]string{
	"people":   "person",
	"children": "child",
	"men":      "man",
	"women":    "woman",
}

// ToSnakeCase converts CamelCase to snake_case (HTTPRequest -> http_request)
func ToSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				if unicode.IsLower(prev) {
					result.WriteRune('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					result.WriteRune('_')
				}
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Singularize returns the singular form of a snake_case plural noun.
// Only the last word of a compound name is inflected (user_accounts -> user_account).
func Singularize(s string) string {
	prefix := ""
	word := s
	if i := strings.LastIndex(s, "_"); i >= 0 {
		prefix, word = s[:i+1], s[i+1:]
	}

	if single, ok := irregular[word]; ok {
		return prefix + single
	}

	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		word = word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"):
		word = word[:len(word)-2]
	case strings.HasSuffix(word, "ss"):
	case strings.HasSuffix(word, "s") && len(word) > 1:
		word = word[:len(word)-1]
	}
	return prefix + word
}
