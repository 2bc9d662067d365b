// Package engine runs mapping sessions: every source file is classified,
// its winning rule resolved and its identity built and checked.
//
// A session owns the mutable state of a run: the run-counter table, the
// identity registry, the set of mapped sources and the study samples.
// Re-running the same batch on a fresh session reproduces the same
// identities in the same order.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidsmapper/internal/classify"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/identity"
	"bidsmapper/internal/logger"
	"bidsmapper/internal/resolve"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// DefaultWorkers is the number of parallel classification workers.
const DefaultWorkers = 4

// Decision is the complete outcome for one source file.
type Decision struct {
	// Source is the source file path.
	Source string
	// Group is the winning group.
	Group string
	// Rule is the winning rule.
	Rule *template.Rule
	// Subject and Session are the labels taken from the source path.
	Subject string
	Session string
	// Values are the resolved entities in template order, sanitized when
	// the session sanitizes.
	Values resolve.Values
	// Identity is the collision-checked output identity.
	Identity identity.Identity
	// Discarded is true for files caught by the discard group.
	Discarded bool
	// Unassigned is true for files in the unassigned group.
	Unassigned bool
	// Prior is true when a prior template decided the match.
	Prior bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrior consults t before the primary template. Only the specific rules
// of a prior take part; its catch-alls are skipped.
func WithPrior(t *template.Template) Option {
	return func(e *Engine) {
		if t != nil {
			e.prior = t
		}
	}
}

// WithPrefixes sets the folder prefixes of subject and session labels.
func WithPrefixes(subject, session string) Option {
	return func(e *Engine) {
		e.subjectPrefix = subject
		e.sessionPrefix = session
	}
}

// WithSanitize enables or disables sanitizing entity values.
func WithSanitize(on bool) Option {
	return func(e *Engine) { e.sanitize = on }
}

// WithSuffixEntity sets the entity rendered bare at the end of names.
func WithSuffixEntity(name string) Option {
	return func(e *Engine) { e.suffixEntity = name }
}

// WithWorkers sets the number of parallel classification workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCacheSize sets the classification cache size; zero disables it.
func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCounters shares a run-counter table with the session.
func WithCounters(c *resolve.Counters) Option {
	return func(e *Engine) {
		if c != nil {
			e.counters = c
		}
	}
}

// WithPreferences sets the per-entity value preferences used for
// list-of-allowed-values entities.
func WithPreferences(p map[string]string) Option {
	return func(e *Engine) { e.preferences = p }
}

// Engine is one mapping session. It is safe for concurrent use; use MapAll
// for reproducible batch results.
type Engine struct {
	id      string
	primary *template.Template
	prior   *template.Template

	subjectPrefix string
	sessionPrefix string
	sanitize      bool
	suffixEntity  string
	workers       int
	cacheSize     int
	preferences   map[string]string

	classifier *classify.Classifier
	counters   *resolve.Counters
	builder    *identity.Builder
	log        *zap.SugaredLogger

	mu      sync.Mutex
	mapped  map[string]struct{}
	samples *sampler
}

// New starts a mapping session over primary.
func New(primary *template.Template, opts ...Option) (*Engine, error) {
	if primary == nil {
		return nil, errors.New("engine needs a template")
	}

	e := &Engine{
		id:            uuid.New().String(),
		primary:       primary,
		subjectPrefix: resolve.DefaultSubjectPrefix,
		sessionPrefix: resolve.DefaultSessionPrefix,
		sanitize:      true,
		suffixEntity:  identity.DefaultSuffixEntity,
		workers:       DefaultWorkers,
		cacheSize:     classify.DefaultCacheSize,
		counters:      resolve.NewCounters(),
		mapped:        map[string]struct{}{},
		samples:       newSampler(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logger.ComponentLogger("engine")
	}

	e.log = logger.ChildLogger(e.log, logger.FieldSessionID, e.id)

	chain := []*template.Template{primary}
	if e.prior != nil {
		chain = []*template.Template{e.prior, primary}
	}

	c, err := classify.New(chain,
		classify.WithCacheSize(e.cacheSize),
		classify.WithLogger(e.log.Named("classify")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create classifier")
	}

	e.classifier = c
	e.builder = identity.NewBuilder(
		identity.WithSanitize(e.sanitize),
		identity.WithSuffixEntity(e.suffixEntity),
	)

	e.log.Infow("Mapping session started",
		logger.FieldCount, primary.RuleCount(),
		"prior", e.prior != nil,
	)

	return e, nil
}

// ID returns the session id.
func (e *Engine) ID() string {
	return e.id
}

// Counters returns the session's run-counter table.
func (e *Engine) Counters() *resolve.Counters {
	return e.counters
}

// Identities returns every identity emitted so far, in emission order.
func (e *Engine) Identities() []identity.Identity {
	return e.builder.Identities()
}

// Map classifies, resolves and builds the identity of one source file.
// Mapping the same source path twice in one session fails with
// ErrAlreadyMapped. A source that failed to classify or resolve is not
// marked mapped and may be retried. A *identity.DuplicateIdentityError is
// returned together with the decision so the caller can report it and
// continue.
func (e *Engine) Map(src source.File) (Decision, error) {
	if err := e.claim(src.Path); err != nil {
		return Decision{Source: src.Path}, err
	}

	m, err := e.classifier.Classify(src.Attributes)

	return e.finish(src, m, err)
}

func (e *Engine) claim(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.mapped[path]; ok {
		return errors.Wrapf(errors.ErrAlreadyMapped, "source %s", path)
	}

	e.mapped[path] = struct{}{}

	return nil
}

func (e *Engine) release(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.mapped, path)
}

// finish runs everything after classification.
func (e *Engine) finish(src source.File, m classify.Match, classifyErr error) (Decision, error) {
	d := Decision{Source: src.Path}

	if classifyErr != nil {
		e.release(src.Path)
		return d, errors.Wrapf(classifyErr, "source %s", src.Path)
	}

	start := time.Now()

	ctx := resolve.NewContext(src.Path, e.subjectPrefix, e.sessionPrefix, e.counters)
	ctx.Preferences = e.preferences
	ctx.Sanitize = e.sanitize

	d.Group = m.Group
	d.Rule = m.Rule
	d.Subject = ctx.Subject
	d.Session = ctx.Session
	d.Discarded = m.Discarded()
	d.Unassigned = m.Unassigned()
	d.Prior = e.prior != nil && m.Template == e.prior

	values, err := resolve.Resolve(m.Rule, src.Attributes, ctx)
	if err != nil {
		e.release(src.Path)
		return d, errors.Wrapf(err, "source %s", src.Path)
	}

	d.Values = values

	if !e.samples.record(m, src) {
		e.log.Debugw("Source not sampled, attribute value holds a wildcard",
			logger.FieldSource, src.Path,
			logger.FieldRule, m.Rule.ID(),
		)
	}

	id, err := e.builder.Build(m.Group, m.Rule, values, identity.Source{
		Path:    src.Path,
		Subject: ctx.Subject,
		Session: ctx.Session,
	})
	if err != nil {
		e.log.Warnw("Identity collision",
			logger.FieldSource, src.Path,
			logger.FieldRule, m.Rule.ID(),
			logger.FieldError, err,
		)

		return d, err
	}

	d.Identity = id

	e.log.Debugw("Mapped source",
		logger.FieldSource, src.Path,
		logger.FieldGroup, m.Group,
		logger.FieldRule, m.Rule.ID(),
		logger.FieldIdentity, id.Key(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	return d, nil
}
