// Package resolve expands the placeholders of a matched rule's entity
// template into concrete entity values.
//
// Resolution order within a rule:
//  1. every entity without a run counter, in template order, sanitized when
//     the context asks for it;
//  2. the run-counter entity, drawn from the counter table under a key made
//     of the file's scope and the values resolved in step 1.
//
// # List-of-allowed-values policy
//
// A list value resolves to exactly one of its elements:
//  1. the element selected by the template's trailing index, if any;
//  2. otherwise the caller's preference for the entity, if it equals one of
//     the resolved elements;
//  3. otherwise the first element.
package resolve

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"bidsmapper/internal/common"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// Entity names whose <<SourceFilePath>> resolves to a path label.
var (
	subjectEntities = map[string]bool{"sub": true, "subject": true}
	sessionEntities = map[string]bool{"ses": true, "session": true}
)

// Value is one resolved entity.
type Value struct {
	Entity string
	Value  string
}

// Values are resolved entities in template order. Entities that resolved to
// the empty string are omitted.
type Values []Value

// Get returns the value of entity.
func (v Values) Get(entity string) (string, bool) {
	for _, e := range v {
		if e.Entity == entity {
			return e.Value, true
		}
	}

	return "", false
}

// Names returns the entity names in order.
func (v Values) Names() []string {
	names := make([]string, len(v))
	for i, e := range v {
		names[i] = e.Entity
	}

	return names
}

// Map returns the values as a map.
func (v Values) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, e := range v {
		m[e.Entity] = e.Value
	}

	return m
}

// String renders the values as "k=v k=v".
func (v Values) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Entity + "=" + e.Value
	}

	return strings.Join(parts, " ")
}

// Resolve expands the entity template of rule against attrs and ctx.
// Unresolved references become empty strings; they are never an error.
func Resolve(rule *template.Rule, attrs source.Attributes, ctx *Context) (Values, error) {
	if rule == nil {
		return nil, errors.New("resolve: nil rule")
	}

	if ctx == nil {
		ctx = &Context{}
	}

	r := resolver{rule: rule, attrs: attrs, ctx: ctx}

	resolved := make([]string, len(rule.Entities))
	counterAt, hasCounter := rule.CounterEntity()

	var counterSpec template.ValueSpec

	for i, e := range rule.Entities {
		spec := r.choose(e)
		if hasCounter && i == counterAt {
			counterSpec = spec
			continue
		}

		resolved[i] = r.clean(r.text(e.Name, spec, 0))
	}

	if hasCounter {
		start, ok := counterSpec.CounterStart()
		if ok {
			if ctx.Counters == nil {
				return nil, errors.Newf("resolve %s: rule has a run counter but the context has no counter table", rule.ID())
			}

			n := ctx.Counters.Next(r.counterKey(counterAt, resolved), start)
			resolved[counterAt] = r.clean(r.text(rule.Entities[counterAt].Name, counterSpec, n))
		} else {
			// The selected element of a list holds no counter.
			resolved[counterAt] = r.clean(r.text(rule.Entities[counterAt].Name, counterSpec, 0))
		}
	}

	out := make(Values, 0, len(resolved))
	for i, e := range rule.Entities {
		if resolved[i] == "" {
			continue
		}

		out = append(out, Value{Entity: e.Name, Value: resolved[i]})
	}

	return out, nil
}

type resolver struct {
	rule  *template.Rule
	attrs source.Attributes
	ctx   *Context
}

// choose applies the list-of-allowed-values policy and returns the text
// spec to render. Non-list specs are returned unchanged.
func (r resolver) choose(e template.Entity) template.ValueSpec {
	spec := e.Spec
	if spec.Kind != template.SpecChoice || common.IsEmpty(spec.Choices) {
		return spec
	}

	if common.IsSingle(spec.Choices) {
		return spec.Choices[0]
	}

	if spec.Index != template.NoIndex {
		return spec.Choices[spec.Index]
	}

	if pref, ok := r.ctx.Preferences[e.Name]; ok {
		for _, c := range spec.Choices {
			if c.HasCounter() {
				continue
			}

			if r.text(e.Name, c, 0) == pref {
				return c
			}
		}
	}

	return spec.Choices[0]
}

// text renders a text spec. counter is substituted for <<N>>.
func (r resolver) text(entity string, spec template.ValueSpec, counter int) string {
	if spec.Kind != template.SpecText {
		return ""
	}

	var b strings.Builder

	for _, p := range spec.Parts {
		switch p.Kind {
		case template.PartLiteral:
			b.WriteString(p.Text)
		case template.PartReference:
			b.WriteString(r.attrs.Value(p.Text))
		case template.PartCounter:
			b.WriteString(strconv.Itoa(counter))
		case template.PartSourcePath:
			b.WriteString(r.sourcePath(entity))
		}
	}

	return b.String()
}

func (r resolver) clean(s string) string {
	if r.ctx.Sanitize {
		return Sanitize(s)
	}

	return s
}

func (r resolver) sourcePath(entity string) string {
	switch {
	case subjectEntities[entity]:
		return r.ctx.Subject
	case sessionEntities[entity]:
		return r.ctx.Session
	default:
		return r.ctx.SourcePath
	}
}

func (r resolver) counterKey(counterAt int, resolved []string) CounterKey {
	var b strings.Builder

	for i, e := range r.rule.Entities {
		if i == counterAt {
			continue
		}

		b.WriteString(strconv.Quote(e.Name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(resolved[i]))
		b.WriteByte(';')
	}

	return CounterKey{
		Subject:  r.ctx.Subject,
		Session:  r.ctx.Session,
		Group:    r.rule.Group,
		Rule:     fmt.Sprintf("%s#%016x", r.rule.ID(), r.rule.Fingerprint),
		Entities: b.String(),
	}
}

// Sanitize keeps ASCII letters and digits only.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}

		return -1
	}, s)
}
