// Package classify selects the winning rule for a source file: the first
// rule, in group order and then rule order, whose attribute pattern the
// file satisfies.
//
// There is no scoring and no backtracking. Two rules in one group that both
// match are decided by list position alone, so rules must never be reordered
// or deduplicated.
package classify

import (
	"github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"bidsmapper/internal/errors"
	"bidsmapper/internal/logger"
	"bidsmapper/internal/match"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// DefaultCacheSize is the number of attribute sets whose result is cached.
const DefaultCacheSize = 1024

// Match is the outcome of a classification.
type Match struct {
	// Template is the template the winning rule belongs to.
	Template *template.Template
	// Group is the name of the winning rule's group.
	Group string
	// Rule is the winning rule.
	Rule *template.Rule
	// Layer is the position of Template in the classifier's chain.
	Layer int
}

// Discarded reports whether the file landed in the discard group. This is a
// valid outcome the caller may choose to skip, not an error.
func (m Match) Discarded() bool {
	return m.Template != nil && m.Template.IsDiscard(m.Group)
}

// Unassigned reports whether the file landed in the unassigned group.
func (m Match) Unassigned() bool {
	return m.Template != nil && m.Template.IsUnassigned(m.Group)
}

// Classifier finds the first satisfying rule over a chain of templates. It
// is safe for concurrent use.
type Classifier struct {
	chain []*template.Template
	rules []Match
	cache *lru.Cache[uint64, cached]
	log   *zap.SugaredLogger
}

type cached struct {
	match Match
	ok    bool
}

// Option configures a Classifier.
type Option func(*config)

type config struct {
	cacheSize int
	log       *zap.SugaredLogger
}

// WithCacheSize sets the result cache size. Zero or less disables caching.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *config) { c.log = l }
}

// New creates a classifier over a chain of templates tried in order. Every
// template except the last contributes only its specific rules: a catch-all
// in an earlier layer would shadow everything after it.
func New(chain []*template.Template, opts ...Option) (*Classifier, error) {
	if len(chain) == 0 {
		return nil, errors.New("classifier needs at least one template")
	}

	for i, t := range chain {
		if t == nil {
			return nil, errors.Newf("template %d of the chain is nil", i)
		}
	}

	cfg := config{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Classifier{
		chain: append([]*template.Template(nil), chain...),
		log:   cfg.log,
	}

	if c.log == nil {
		c.log = logger.ComponentLogger("classify")
	}

	// Flatten the chain once; the templates are immutable.
	last := len(chain) - 1
	for layer, t := range chain {
		for _, g := range t.Groups() {
			for _, r := range g.Rules() {
				if layer < last && r.Attributes.MatchesAnything() {
					continue
				}

				c.rules = append(c.rules, Match{Template: t, Group: g.Name, Rule: r, Layer: layer})
			}
		}
	}

	if cfg.cacheSize > 0 {
		cache, err := lru.New[uint64, cached](cfg.cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create classification cache")
		}

		c.cache = cache
	}

	return c, nil
}

// Classify returns the first rule satisfied by attrs. It fails with
// ErrNoMatch only if no template in the chain has a catch-all.
func (c *Classifier) Classify(attrs source.Attributes) (Match, error) {
	var key uint64
	if c.cache != nil {
		key = attrs.Fingerprint()
		if hit, ok := c.cache.Get(key); ok {
			return hit.result()
		}
	}

	m, ok := c.classify(attrs)

	if c.cache != nil {
		c.cache.Add(key, cached{match: m, ok: ok})
	}

	if !ok {
		c.log.Debugw("No rule matched", logger.FieldCount, len(attrs))
	}

	return cached{match: m, ok: ok}.result()
}

func (c cached) result() (Match, error) {
	if !c.ok {
		return Match{}, errors.Wrap(errors.ErrNoMatch, "no rule matches the source attributes")
	}

	return c.match, nil
}

func (c *Classifier) classify(attrs source.Attributes) (Match, bool) {
	for _, m := range c.rules {
		if match.Matches(attrs, m.Rule.Attributes) {
			return m, true
		}
	}

	return Match{}, false
}

// Templates returns the chain in evaluation order.
func (c *Classifier) Templates() []*template.Template {
	return append([]*template.Template(nil), c.chain...)
}

// CacheLen returns the number of cached classifications.
func (c *Classifier) CacheLen() int {
	if c.cache == nil {
		return 0
	}

	return c.cache.Len()
}
