package engine

import (
	"sync"

	"bidsmapper/internal/classify"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// Sample is one distinct acquisition seen in a session: a copy of the
// winning rule whose attribute patterns are pinned to the observed values
// and whose provenance is the first source file that produced it.
//
// Patterns have no escape syntax, so a source whose observed value holds a
// wildcard character cannot be pinned exactly and yields no sample.
type Sample struct {
	Group string
	Rule  *template.Rule
}

// sampler keeps the first sample per (group, pinned attributes) in
// first-seen order.
type sampler struct {
	mu    sync.Mutex
	seen  map[sampleKey]struct{}
	order []Sample
}

type sampleKey struct {
	group string
	attrs uint64
}

func newSampler() *sampler {
	return &sampler{seen: map[sampleKey]struct{}{}}
}

func (s *sampler) record(m classify.Match, src source.File) bool {
	rule := m.Rule.Clone()
	rule.Provenance = src.Path

	pinned := make(source.Attributes, len(rule.Attributes))

	for i, e := range rule.Attributes {
		value := src.Attributes.Value(e.Name)
		pinned[e.Name] = value

		// An empty observed value stays unconstrained; "" reads back as absent.
		if value == "" {
			rule.Attributes[i].Pattern = template.Absent()
			continue
		}

		if template.IsWildcard(value) {
			return false
		}

		rule.Attributes[i].Pattern = template.Glob(value)
	}

	key := sampleKey{group: m.Group, attrs: pinned.Fingerprint()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return true
	}

	s.seen[key] = struct{}{}
	s.order = append(s.order, Sample{Group: m.Group, Rule: rule})

	return true
}

func (s *sampler) samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.order))
	for i, sm := range s.order {
		out[i] = Sample{Group: sm.Group, Rule: sm.Rule.Clone()}
	}

	return out
}

// Samples returns the distinct acquisitions mapped so far, in first-seen
// order.
func (e *Engine) Samples() []Sample {
	return e.samples.samples()
}

// SampleTemplate renders the samples as a partial template with the
// primary template's reserved group names. Loaded as a prior for the next
// session, it reproduces this session's decisions for the files it saw
// while letting new acquisitions fall through to the primary template.
func (e *Engine) SampleTemplate() (*template.Template, error) {
	var (
		groups []*template.Group
		byName = map[string][]*template.Rule{}
		names  []string
	)

	for _, sm := range e.Samples() {
		if _, ok := byName[sm.Group]; !ok {
			names = append(names, sm.Group)
		}

		byName[sm.Group] = append(byName[sm.Group], sm.Rule)
	}

	for _, name := range names {
		groups = append(groups, template.NewGroup(name, byName[name]...))
	}

	return template.New(groups,
		template.Partial(),
		template.WithReservedGroups(e.primary.Unassigned, e.primary.Discard),
	)
}
