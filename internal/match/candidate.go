package match

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Suggestion thresholds.
const (
	// DefaultMinScore is the minimum similarity for a name to be suggested.
	DefaultMinScore = 0.7
	// DefaultMaxSuggestions caps the number of suggestions per name.
	DefaultMaxSuggestions = 3
)

// Candidate is a known attribute name scored against an unknown one.
type Candidate struct {
	Name string
	// Score is the normalized Levenshtein similarity (0-1) of the
	// normalized names.
	Score float64
}

// CandidateList is a list of candidates with ranking functionality.
type CandidateList []Candidate

// RankCandidates scores every known name against name and returns them
// sorted by score (descending), then alphabetically.
func RankCandidates(name string, known []string) CandidateList {
	norm := NormalizeName(name)

	candidates := make(CandidateList, 0, len(known))
	for _, k := range known {
		if k == name {
			continue
		}

		candidates = append(candidates, Candidate{Name: k, Score: Similarity(norm, NormalizeName(k))})
	}

	sort.Sort(candidates)

	return candidates
}

// Suggest returns up to DefaultMaxSuggestions known names that are close to
// name, best first.
func Suggest(name string, known []string) []string {
	best := RankCandidates(name, known).AboveThreshold(DefaultMinScore).Top(DefaultMaxSuggestions)

	out := make([]string, len(best))
	for i, c := range best {
		out[i] = c.Name
	}

	return out
}

// Similarity computes a normalized similarity score between 0 and 1 from
// the Levenshtein distance. 1.0 means identical strings.
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Len implements sort.Interface.
func (c CandidateList) Len() int { return len(c) }

// Swap implements sort.Interface.
func (c CandidateList) Swap(i, j int) { c[i], c[j] = c[j], c[i] }

// Less implements sort.Interface.
// Sorts by score descending, then by name for determinism.
func (c CandidateList) Less(i, j int) bool {
	if c[i].Score != c[j].Score {
		return c[i].Score > c[j].Score
	}

	return c[i].Name < c[j].Name
}

// Top returns the top n candidates.
func (c CandidateList) Top(n int) CandidateList {
	if n >= len(c) {
		return c
	}

	return c[:n]
}

// Best returns the best candidate, or nil if there are none.
func (c CandidateList) Best() *Candidate {
	if len(c) == 0 {
		return nil
	}

	return &c[0]
}

// AboveThreshold returns candidates scoring at least threshold.
func (c CandidateList) AboveThreshold(threshold float64) CandidateList {
	var result CandidateList

	for _, cand := range c {
		if cand.Score >= threshold {
			result = append(result, cand)
		}
	}

	return result
}
