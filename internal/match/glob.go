package match

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/golang-lru/v2"

	"bidsmapper/internal/errors"
	"bidsmapper/internal/template"
)

// compiledCacheSize bounds the number of compiled wildcard patterns kept.
const compiledCacheSize = 4096

var compiled *lru.Cache[string, Matcher]

func init() {
	c, err := lru.New[string, Matcher](compiledCacheSize)
	if err != nil {
		panic(err)
	}

	compiled = c
}

// Matcher tests one string-coerced attribute value.
type Matcher interface {
	Match(value string) bool
}

type literal string

func (l literal) Match(value string) bool { return string(l) == value }

// Compile turns a literal-or-wildcard pattern into a Matcher. '*' matches
// any run of characters (including none and including '/'), '?' exactly
// one character. Every other character is literal and the match is
// anchored to the whole value.
func Compile(pattern string) (Matcher, error) {
	if !template.IsWildcard(pattern) {
		return literal(pattern), nil
	}

	if m, ok := compiled.Get(pattern); ok {
		return m, nil
	}

	g, err := glob.Compile(globExpr(pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid wildcard pattern %q", pattern)
	}

	compiled.Add(pattern, g)

	return g, nil
}

// globExpr quotes everything except '*' and '?' so that brackets, braces
// and backslashes in attribute values stay literal.
func globExpr(pattern string) string {
	var (
		b   strings.Builder
		run strings.Builder
	)

	flush := func() {
		if run.Len() > 0 {
			b.WriteString(glob.QuoteMeta(run.String()))
			run.Reset()
		}
	}

	for _, r := range pattern {
		if r == '*' || r == '?' {
			flush()
			b.WriteRune(r)

			continue
		}

		run.WriteRune(r)
	}

	flush()

	return b.String()
}
