package match

import (
	"strings"
	"unicode"
)

// NormalizeName normalizes an attribute name for fuzzy comparison.
// The normalization pipeline:
// 1. Split CamelCase and separated words into tokens.
// 2. Case-fold every token to lower.
// 3. Join the tokens without separators.
//
// "SeriesDescription", "series_description" and "Series Description" all
// normalize to "seriesdescription".
func NormalizeName(s string) string {
	return strings.Join(TokenizeName(s), "")
}

// TokenizeName splits an attribute name into lowercase tokens.
// Examples:
//   - "SeriesDescription" -> ["series", "description"]
//   - "MRAcquisitionType" -> ["mr", "acquisition", "type"]
//   - "echo_time" -> ["echo", "time"]
func TokenizeName(s string) []string {
	tokens := splitWords(s)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}

	return tokens
}

func splitWords(s string) []string {
	if s == "" {
		return nil
	}

	var (
		tokens  []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if isSeparator(r) {
			flush()
			continue
		}

		if i > 0 && startsWord(runes, i) {
			flush()
		}

		current.WriteRune(r)
	}

	flush()

	return tokens
}

// isSeparator returns true for the separators seen in attribute names.
func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

// startsWord reports whether a new word begins at position i.
func startsWord(runes []rune, i int) bool {
	r, prev := runes[i], runes[i-1]

	if !unicode.IsUpper(r) {
		return false
	}

	// "seriesDescription": lower to upper.
	if !unicode.IsUpper(prev) && !isSeparator(prev) {
		return true
	}

	// "MRAcquisition": the last capital of an acronym starts the next word.
	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}
