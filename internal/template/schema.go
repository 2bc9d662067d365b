package template

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"bidsmapper/internal/common"
)

// Default names of the reserved groups.
const (
	DefaultUnassignedGroup = "extra_data"
	DefaultDiscardGroup    = "exclude"
)

// Template is a loaded, expanded and validated rule table. It is immutable
// after load and safe for concurrent reads.
type Template struct {
	// Version of the template schema.
	Version string
	// Unassigned is the name of the "assign no special meaning" group.
	Unassigned string
	// Discard is the name of the "explicitly discard" group.
	Discard string

	groups  []*Group
	byName  map[string]*Group
	partial bool
}

// Groups returns the groups in evaluation order. The discard group, when
// present, is always last.
func (t *Template) Groups() []*Group {
	return slices.Clone(t.groups)
}

// Group returns the named group.
func (t *Template) Group(name string) (*Group, bool) {
	g, ok := t.byName[name]
	return g, ok
}

// IsDiscard reports whether name is the discard group.
func (t *Template) IsDiscard(name string) bool {
	return name == t.Discard
}

// IsUnassigned reports whether name is the unassigned group.
func (t *Template) IsUnassigned(name string) bool {
	return name == t.Unassigned
}

// Partial reports whether the template was loaded without a catch-all
// requirement.
func (t *Template) Partial() bool {
	return t.partial
}

// RuleCount returns the number of rules over all groups.
func (t *Template) RuleCount() int {
	n := 0
	for _, g := range t.groups {
		n += len(g.rules)
	}

	return n
}

// Group is one classification bucket with its rules in precedence order.
type Group struct {
	Name  string
	rules []*Rule
}

// Rules returns the rules in load order. Order is precedence: it must never
// be sorted or deduplicated.
func (g *Group) Rules() []*Rule {
	return slices.Clone(g.rules)
}

// Len returns the number of rules in the group.
func (g *Group) Len() int {
	return len(g.rules)
}

// Rule maps an attribute pattern onto an entity template.
type Rule struct {
	// Provenance names the example file the rule was derived from. It is a
	// lookup key for humans and never takes part in matching.
	Provenance string
	// Attributes is the conjunction of per-attribute patterns.
	Attributes AttributePattern
	// Entities is the output entity template in declaration order.
	Entities EntityTemplate

	// Group is the name of the owning group.
	Group string
	// Index is the position of the rule within its group.
	Index int
	// Fingerprint hashes the attributes and entities (not the provenance).
	// Rules with equal fingerprints are byte-identical.
	Fingerprint uint64
}

// ID returns the stable identifier of the rule, e.g. "anat[2]".
func (r *Rule) ID() string {
	return fmt.Sprintf("%s[%d]", r.Group, r.Index)
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Attributes = make(AttributePattern, len(r.Attributes))
	for i, e := range r.Attributes {
		c.Attributes[i] = AttributeEntry{Name: e.Name, Pattern: e.Pattern.clone()}
	}

	c.Entities = make(EntityTemplate, len(r.Entities))
	for i, e := range r.Entities {
		c.Entities[i] = Entity{Name: e.Name, Spec: e.Spec.clone()}
	}

	return &c
}

// CounterEntity returns the index of the entity holding a run counter.
func (r *Rule) CounterEntity() (int, bool) {
	for i, e := range r.Entities {
		if e.Spec.HasCounter() {
			return i, true
		}
	}

	return -1, false
}

func (r *Rule) computeFingerprint() {
	d := xxhash.New()
	_, _ = d.WriteString(r.Attributes.canonical())
	_, _ = d.WriteString("\x02")
	_, _ = d.WriteString(r.Entities.canonical())
	r.Fingerprint = d.Sum64()
}

// PatternKind distinguishes the three pattern states. Absent is explicit so
// that an empty attribute value is never confused with "no constraint".
type PatternKind int

const (
	// PatternAbsent matches anything, including a missing attribute.
	PatternAbsent PatternKind = iota
	// PatternGlob is a literal or a wildcard string (`*`, `?`).
	PatternGlob
	// PatternOneOf matches if any of its candidates matches.
	PatternOneOf
)

// String returns a human-readable kind name.
func (k PatternKind) String() string {
	switch k {
	case PatternAbsent:
		return "absent"
	case PatternGlob:
		return "glob"
	case PatternOneOf:
		return "one-of"
	default:
		return common.UnknownStr
	}
}

// Pattern is one attribute constraint.
type Pattern struct {
	Kind       PatternKind
	Value      string
	Candidates []string
}

// Absent returns a pattern that matches anything.
func Absent() Pattern { return Pattern{Kind: PatternAbsent} }

// Glob returns a literal-or-wildcard pattern.
func Glob(v string) Pattern { return Pattern{Kind: PatternGlob, Value: v} }

// OneOf returns a list-of-candidates pattern.
func OneOf(candidates ...string) Pattern {
	return Pattern{Kind: PatternOneOf, Candidates: candidates}
}

// IsWildcard reports whether s contains glob metacharacters.
func IsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// MatchesAnything reports whether the pattern is satisfied by every value,
// including the empty string of a missing attribute.
func (p Pattern) MatchesAnything() bool {
	switch p.Kind {
	case PatternAbsent:
		return true
	case PatternGlob:
		return isStarOnly(p.Value)
	case PatternOneOf:
		return slices.ContainsFunc(p.Candidates, isStarOnly)
	default:
		return false
	}
}

func isStarOnly(s string) bool {
	return s != "" && strings.Trim(s, "*") == ""
}

func (p Pattern) clone() Pattern {
	p.Candidates = common.Clone(p.Candidates)
	return p
}

func (p Pattern) canonical() string {
	switch p.Kind {
	case PatternGlob:
		return "g:" + strconv.Quote(p.Value)
	case PatternOneOf:
		quoted := make([]string, len(p.Candidates))
		for i, c := range p.Candidates {
			quoted[i] = strconv.Quote(c)
		}

		return "o:[" + strings.Join(quoted, ",") + "]"
	default:
		return "a:"
	}
}

// AttributeEntry is one named pattern.
type AttributeEntry struct {
	Name    string
	Pattern Pattern
}

// AttributePattern is an ordered mapping of attribute name to pattern.
type AttributePattern []AttributeEntry

// Get returns the pattern for name.
func (a AttributePattern) Get(name string) (Pattern, bool) {
	for _, e := range a {
		if e.Name == name {
			return e.Pattern, true
		}
	}

	return Pattern{}, false
}

// Names returns the attribute names in declaration order.
func (a AttributePattern) Names() []string {
	names := make([]string, len(a))
	for i, e := range a {
		names[i] = e.Name
	}

	return names
}

// MatchesAnything reports whether every entry is unconstrained, so the whole
// pattern accepts every source (a catch-all).
func (a AttributePattern) MatchesAnything() bool {
	for _, e := range a {
		if !e.Pattern.MatchesAnything() {
			return false
		}
	}

	return true
}

func (a AttributePattern) canonical() string {
	var b strings.Builder
	for _, e := range a {
		b.WriteString(strconv.Quote(e.Name))
		b.WriteByte('=')
		b.WriteString(e.Pattern.canonical())
		b.WriteByte(';')
	}

	return b.String()
}

// SpecKind distinguishes entity value specs.
type SpecKind int

const (
	// SpecEmpty omits the entity unless it is filled later.
	SpecEmpty SpecKind = iota
	// SpecText is literal text mixed with placeholders.
	SpecText
	// SpecChoice is a list of allowed values, with an optional selection.
	SpecChoice
)

// String returns a human-readable kind name.
func (k SpecKind) String() string {
	switch k {
	case SpecEmpty:
		return "empty"
	case SpecText:
		return "text"
	case SpecChoice:
		return "choice"
	default:
		return common.UnknownStr
	}
}

// NoIndex marks a choice without an explicit selection.
const NoIndex = -1

// ValueSpec is the parsed form of one entity template value.
type ValueSpec struct {
	Kind SpecKind
	// Raw is the text as written (SpecText only).
	Raw string
	// Parts is the parsed text (SpecText only).
	Parts []Part
	// Choices are the allowed values (SpecChoice only).
	Choices []ValueSpec
	// Index is the explicit selection within Choices, or NoIndex.
	Index int
}

// EmptySpec returns a spec that resolves to nothing.
func EmptySpec() ValueSpec { return ValueSpec{Kind: SpecEmpty, Index: NoIndex} }

// HasCounter reports whether the spec (or any choice) holds a run counter.
func (v ValueSpec) HasCounter() bool {
	_, ok := v.CounterStart()
	return ok
}

// CounterStart returns the declared start value of the run counter.
func (v ValueSpec) CounterStart() (int, bool) {
	for _, p := range v.Parts {
		if p.Kind == PartCounter {
			return p.Start, true
		}
	}

	for _, c := range v.Choices {
		if start, ok := c.CounterStart(); ok {
			return start, true
		}
	}

	return 0, false
}

// String renders the spec in template syntax.
func (v ValueSpec) String() string {
	switch v.Kind {
	case SpecText:
		return v.Raw
	case SpecChoice:
		parts := make([]string, 0, len(v.Choices)+1)
		for _, c := range v.Choices {
			parts = append(parts, strconv.Quote(c.String()))
		}

		if v.Index != NoIndex {
			parts = append(parts, strconv.Itoa(v.Index))
		}

		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

func (v ValueSpec) clone() ValueSpec {
	v.Parts = common.Clone(v.Parts)
	if v.Choices != nil {
		choices := make([]ValueSpec, len(v.Choices))
		for i, c := range v.Choices {
			choices[i] = c.clone()
		}

		v.Choices = choices
	}

	return v
}

// Entity is one named output value spec.
type Entity struct {
	Name string
	Spec ValueSpec
}

// EntityTemplate is an ordered mapping of entity name to value spec.
type EntityTemplate []Entity

// Get returns the spec for name.
func (e EntityTemplate) Get(name string) (ValueSpec, bool) {
	for _, ent := range e {
		if ent.Name == name {
			return ent.Spec, true
		}
	}

	return ValueSpec{}, false
}

// Names returns the entity names in declaration order.
func (e EntityTemplate) Names() []string {
	names := make([]string, len(e))
	for i, ent := range e {
		names[i] = ent.Name
	}

	return names
}

func (e EntityTemplate) canonical() string {
	var b strings.Builder
	for _, ent := range e {
		b.WriteString(strconv.Quote(ent.Name))
		b.WriteByte('=')
		b.WriteString(ent.Spec.Kind.String())
		b.WriteByte(':')
		b.WriteString(strconv.Quote(ent.Spec.String()))
		b.WriteByte(';')
	}

	return b.String()
}
