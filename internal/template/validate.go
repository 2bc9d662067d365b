package template

import (
	"fmt"
	"strings"

	"bidsmapper/internal/diagnostic"
	"bidsmapper/internal/errors"
)

// New assembles a template from groups built in code. It applies the same
// checks as Parse. The discard group is moved to the end.
func New(groups []*Group, opts ...Option) (*Template, error) {
	return assemble(defaultVersion, groups, buildOptions(opts), &diagnostic.Diagnostics{})
}

// NewGroup returns a group holding copies of rules in the given order.
func NewGroup(name string, rules ...*Rule) *Group {
	g := &Group{Name: name, rules: make([]*Rule, len(rules))}
	for i, r := range rules {
		g.rules[i] = r.Clone()
	}

	return g
}

func assemble(version string, groups []*Group, o options, diags *diagnostic.Diagnostics) (*Template, error) {
	t := &Template{
		Version:    version,
		Unassigned: o.unassigned,
		Discard:    o.discard,
		byName:     make(map[string]*Group, len(groups)),
		partial:    o.partial,
	}

	var discard *Group

	for _, g := range groups {
		if _, dup := t.byName[g.Name]; dup {
			diags.AddError("duplicate_group", "group declared twice", "", g.Name)
			continue
		}

		t.byName[g.Name] = g

		for i, r := range g.rules {
			r.Group = g.Name
			r.Index = i
			checkRule(diags, r, r.ID())
			r.computeFingerprint()
		}

		if g.Name == t.Discard {
			discard = g
			continue
		}

		t.groups = append(t.groups, g)
	}

	if discard != nil {
		t.groups = append(t.groups, discard)
	}

	if diags.HasErrors() {
		return nil, diagnosticsError(diags)
	}

	if discard == nil {
		diags.AddInfo("no_discard_group", "template has no discard group", "", t.Discard)
	}

	if !checkReachability(diags, t) && !t.partial {
		err := errors.WithHint(
			errors.New("template has no catch-all rule"),
			"add a rule with empty attributes to the "+t.Discard+" group, or load the template as partial",
		)

		return nil, errors.Mark(err, errors.ErrNoMatch)
	}

	return t, nil
}

// checkRule reports structural defects of a single rule.
func checkRule(diags *diagnostic.Diagnostics, r *Rule, location string) bool {
	ok := true

	seen := map[string]bool{}
	for _, e := range r.Attributes {
		if seen[e.Name] {
			diags.AddError("duplicate_attribute", "attribute listed twice", location, e.Name)
			ok = false
		}

		seen[e.Name] = true
	}

	clear(seen)

	var counters []string

	for _, e := range r.Entities {
		if seen[e.Name] {
			diags.AddError("duplicate_entity", "entity listed twice", location, e.Name)
			ok = false
		}

		seen[e.Name] = true

		if n := e.Spec.counterCount(); n > 0 {
			counters = append(counters, e.Name)
			if n > 1 && e.Spec.Kind == SpecText {
				diags.AddError("multiple_counters", "value holds more than one run counter", location, e.Name)
				ok = false
			}
		}
	}

	if len(counters) > 1 {
		diags.AddError("multiple_counters",
			fmt.Sprintf("rule has run counters in several entities (%s)", strings.Join(counters, ", ")),
			location, counters[1])

		ok = false
	}

	return ok
}

// checkReachability warns about rules shadowed by an earlier catch-all and
// reports whether the template has a catch-all at all.
func checkReachability(diags *diagnostic.Diagnostics, t *Template) bool {
	var catchAll *Rule

	for _, g := range t.groups {
		for _, r := range g.rules {
			if catchAll != nil {
				diags.AddWarning("unreachable_rule",
					fmt.Sprintf("rule can never match: %s matches everything first", catchAll.ID()),
					r.ID(), r.Provenance)

				continue
			}

			if r.Attributes.MatchesAnything() {
				catchAll = r
			}
		}
	}

	return catchAll != nil
}

// diagnosticsError turns collected error diagnostics into one error marked
// ErrMalformedTemplate, listing every defect as detail.
func diagnosticsError(diags *diagnostic.Diagnostics) error {
	err := errors.Newf("%d template error(s), first: %s", len(diags.Errors), diags.Errors[0].String())

	for _, d := range diags.Errors {
		err = errors.WithDetail(err, d.String())
	}

	return errors.MarkMalformed(err)
}
