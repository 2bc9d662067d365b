// Package identity assembles resolved entities into a canonical output
// identity and checks it for collisions within a session.
package identity

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"bidsmapper/internal/common"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/resolve"
	"bidsmapper/internal/template"
)

// DefaultSuffixEntity is the entity rendered bare at the end of a name.
const DefaultSuffixEntity = "suffix"

// Identity is the fully resolved (group, entities) tuple of a source file.
type Identity struct {
	// Group is the classification group.
	Group string
	// Subject and Session are the path labels of the sources. Identities
	// with different labels never collide.
	Subject string
	Session string
	// Entities are the resolved entity pairs, subject and session first.
	Entities resolve.Values
	// Provenance is the provenance of the winning rule.
	Provenance string
	// Rule is the ID of the winning rule.
	Rule string
	// Fingerprint is the fingerprint of the winning rule.
	Fingerprint uint64
	// Sources lists every source file that produced this identity.
	Sources []string

	suffixEntity string
}

// Name renders the entities as "key-value" pairs joined by "_", with the
// suffix entity's bare value last, e.g. "sub-01_ses-02_acq-mprage_run-1_T1w".
func (id Identity) Name() string {
	parts := make([]string, 0, len(id.Entities))

	var suffix string

	for _, e := range id.Entities {
		if e.Entity == id.suffixName() {
			suffix = e.Value
			continue
		}

		parts = append(parts, e.Entity+"-"+e.Value)
	}

	if suffix != "" {
		parts = append(parts, suffix)
	}

	return strings.Join(parts, "_")
}

// Key returns the canonical identity "group/name".
func (id Identity) Key() string {
	return id.Group + "/" + id.Name()
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.Key()
}

func (id Identity) suffixName() string {
	if id.suffixEntity == "" {
		return DefaultSuffixEntity
	}

	return id.suffixEntity
}

// Source is the file an identity is built for, with the subject and
// session labels taken from its path.
type Source struct {
	Path    string
	Subject string
	Session string
}

// Claim is one side of an identity collision.
type Claim struct {
	Source     string
	Rule       string
	Provenance string
}

// DuplicateIdentityError reports two different rules producing the same
// identity. It is recoverable: the first claim keeps the identity.
type DuplicateIdentityError struct {
	Key      string
	Existing Claim
	Incoming Claim
}

// Error implements error.
func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity %s: %s (rule %s, provenance %q) collides with %s (rule %s, provenance %q)",
		e.Key,
		e.Incoming.Source, e.Incoming.Rule, e.Incoming.Provenance,
		e.Existing.Source, e.Existing.Rule, e.Existing.Provenance)
}

// Unwrap makes errors.Is(err, errors.ErrDuplicateIdentity) hold.
func (e *DuplicateIdentityError) Unwrap() error {
	return errors.ErrDuplicateIdentity
}

// Option configures a Builder.
type Option func(*Builder)

// WithSuffixEntity sets the entity rendered bare at the end of a name.
func WithSuffixEntity(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.suffixEntity = name
		}
	}
}

// WithSanitize enables or disables stripping non-alphanumeric characters
// from entity values.
func WithSanitize(on bool) Option {
	return func(b *Builder) { b.sanitize = on }
}

// Builder builds identities and keeps the per-session registry used for
// the uniqueness check. The registry is keyed on the subject and session
// labels, the group and the entity pairs, never on the rendered name. It is
// safe for concurrent use.
type Builder struct {
	suffixEntity string
	sanitize     bool

	mu    sync.Mutex
	byKey map[string]*Identity
	order []string
}

// NewBuilder returns a Builder with an empty registry. Sanitizing is on by
// default.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		suffixEntity: DefaultSuffixEntity,
		sanitize:     true,
		byKey:        map[string]*Identity{},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build assembles the identity of src from the winning rule and its
// resolved values and registers it.
//
// The same identity from the same source returns the registered one. The
// same identity from another source whose rule is byte-identical (equal
// fingerprint) is shared and the source appended. The same identity from a
// different rule fails with a *DuplicateIdentityError.
func (b *Builder) Build(group string, rule *template.Rule, values resolve.Values, src Source) (Identity, error) {
	if rule == nil {
		return Identity{}, errors.New("identity: nil rule")
	}

	id := Identity{
		Group:        group,
		Subject:      src.Subject,
		Session:      src.Session,
		Entities:     b.arrange(values),
		Provenance:   rule.Provenance,
		Rule:         rule.ID(),
		Fingerprint:  rule.Fingerprint,
		Sources:      []string{src.Path},
		suffixEntity: b.suffixEntity,
	}

	key := id.registryKey()

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.byKey[key]
	if !ok {
		b.byKey[key] = &id
		b.order = append(b.order, key)

		return id.clone(), nil
	}

	if slices.Contains(existing.Sources, src.Path) {
		return existing.clone(), nil
	}

	if existing.Fingerprint == rule.Fingerprint {
		existing.Sources = append(existing.Sources, src.Path)
		return existing.clone(), nil
	}

	first, _ := common.First(existing.Sources)

	return Identity{}, &DuplicateIdentityError{
		Key:      id.Key(),
		Existing: Claim{Source: first, Rule: existing.Rule, Provenance: existing.Provenance},
		Incoming: Claim{Source: src.Path, Rule: id.Rule, Provenance: id.Provenance},
	}
}

// Identities returns the registered identities in first-emission order.
func (b *Builder) Identities() []Identity {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Identity, len(b.order))
	for i, key := range b.order {
		out[i] = b.byKey[key].clone()
	}

	return out
}

// Len returns the number of registered identities.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.order)
}

// arrange sanitizes values and moves subject and session to the front,
// keeping template order otherwise. Values that sanitize to nothing are
// dropped.
func (b *Builder) arrange(values resolve.Values) resolve.Values {
	var front, rest resolve.Values

	for _, v := range values {
		if b.sanitize {
			v.Value = resolve.Sanitize(v.Value)
		}

		if v.Value == "" {
			continue
		}

		switch v.Entity {
		case "sub", "subject":
			front = slices.Insert(front, 0, v)
		case "ses", "session":
			front = append(front, v)
		default:
			rest = append(rest, v)
		}
	}

	return append(front, rest...)
}

// registryKey encodes the scope, group and entity pairs unambiguously.
// Two identities may render the same name from different pairs, e.g.
// acq="x_run-1" against acq="x", run="1".
func (id Identity) registryKey() string {
	var b strings.Builder

	for _, part := range []string{id.Subject, id.Session, id.Group} {
		b.WriteString(strconv.Quote(part))
		b.WriteByte('/')
	}

	for _, e := range id.Entities {
		b.WriteString(strconv.Quote(e.Entity))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(e.Value))
		b.WriteByte(';')
	}

	return b.String()
}

func (id Identity) clone() Identity {
	id.Entities = slices.Clone(id.Entities)
	id.Sources = slices.Clone(id.Sources)

	return id
}
