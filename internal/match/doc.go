// Package match decides whether a source attribute mapping satisfies a rule's
// attribute pattern, and suggests attribute names for likely typos.
//
// Key functions:
//   - Matches: conjunction of per-attribute patterns
//   - Compile: anchored '*'/'?' wildcard matcher, cached
//   - Suggest: close attribute names by normalized Levenshtein similarity
//   - Lint: rule attributes no source carries
package match
