package match

import (
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// Matches reports whether attrs satisfy every entry of p. An empty pattern
// matches anything. A missing attribute compares as the empty string.
func Matches(attrs source.Attributes, p template.AttributePattern) bool {
	_, ok := Mismatch(attrs, p)
	return !ok
}

// Mismatch returns the name of the first pattern entry attrs do not
// satisfy, or false if all of them are satisfied.
func Mismatch(attrs source.Attributes, p template.AttributePattern) (string, bool) {
	for _, e := range p {
		if e.Pattern.Kind == template.PatternAbsent {
			continue
		}

		if !MatchValue(attrs.Value(e.Name), e.Pattern) {
			return e.Name, true
		}
	}

	return "", false
}

// MatchValue reports whether one string-coerced value satisfies p.
func MatchValue(value string, p template.Pattern) bool {
	switch p.Kind {
	case template.PatternAbsent:
		return true
	case template.PatternGlob:
		return matchOne(p.Value, value)
	case template.PatternOneOf:
		for _, c := range p.Candidates {
			if matchOne(c, value) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func matchOne(pattern, value string) bool {
	m, err := Compile(pattern)
	if err != nil {
		// Unreachable with quoted expressions; fall back to equality.
		return pattern == value
	}

	return m.Match(value)
}
