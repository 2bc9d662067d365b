package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidsmapper/internal/errors"
	"bidsmapper/internal/match"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

const anatTemplate = `
groups:
  anat:
    - provenance: t1
      attributes: {SeriesDescription: '*T1*'}
      entities: {suffix: T1w, run: <<1>>}
    - provenance: t1-shadowed
      attributes: {SeriesDescription: '*T1w*'}
      entities: {suffix: T1w}
    - provenance: t2
      attributes: {SeriesDescription: '*T2*'}
      entities: {suffix: T2w}
  extra_data:
    - attributes: {ImageType: ['DERIVED*', '*MPR*']}
      entities: {suffix: <SeriesDescription>}
  exclude:
    - attributes: {}
      entities: {suffix: <SeriesDescription>}
`

func mustParse(t *testing.T, yaml string, opts ...template.Option) *template.Template {
	t.Helper()

	tpl, err := template.Parse([]byte(yaml), opts...)
	require.NoError(t, err)

	return tpl
}

func TestClassify(t *testing.T) {
	tpl := mustParse(t, anatTemplate)

	c, err := New([]*template.Template{tpl})
	require.NoError(t, err)

	tests := []struct {
		name       string
		attrs      source.Attributes
		group      string
		provenance string
		discarded  bool
		unassigned bool
	}{
		{"first rule wins", source.Attributes{"SeriesDescription": "localizer_T1w"}, "anat", "t1", false, false},
		{"later rule in group", source.Attributes{"SeriesDescription": "tse_T2"}, "anat", "t2", false, false},
		{"unassigned group", source.Attributes{"SeriesDescription": "x", "ImageType": `DERIVED\SECONDARY`}, "extra_data", "", false, true},
		{"discard catch-all", source.Attributes{"SeriesDescription": "survey"}, "exclude", "", true, false},
		{"empty attributes", source.Attributes{}, "exclude", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := c.Classify(tt.attrs)
			require.NoError(t, err)
			assert.Equal(t, tt.group, m.Group)
			assert.Equal(t, tt.provenance, m.Rule.Provenance)
			assert.Equal(t, tt.discarded, m.Discarded())
			assert.Equal(t, tt.unassigned, m.Unassigned())
			assert.Same(t, tpl, m.Template)
		})
	}
}

// For every rule R and attributes A satisfying R, the winner is never after
// R: same group at a lower or equal index, or an earlier group.
func TestFirstMatchProperty(t *testing.T) {
	tpl := mustParse(t, anatTemplate)

	c, err := New([]*template.Template{tpl})
	require.NoError(t, err)

	groupPos := map[string]int{}
	for i, g := range tpl.Groups() {
		groupPos[g.Name] = i
	}

	values := []string{"", "T1", "T1w", "xT1w", "T2", "mprage_T1w_T2", "survey"}
	imageTypes := []string{"", "ORIGINAL", `DERIVED\MPR`, "MPR"}

	for _, sd := range values {
		for _, it := range imageTypes {
			attrs := source.Attributes{"SeriesDescription": sd, "ImageType": it}

			m, err := c.Classify(attrs)
			require.NoError(t, err)

			for _, g := range tpl.Groups() {
				for _, r := range g.Rules() {
					if !match.Matches(attrs, r.Attributes) {
						continue
					}

					winner := groupPos[m.Group]*1000 + m.Rule.Index
					candidate := groupPos[r.Group]*1000 + r.Index
					assert.LessOrEqual(t, winner, candidate, "attrs %v: %s beats %s", attrs, m.Rule.ID(), r.ID())
				}
			}
		}
	}
}

func TestClassifyAnchoredWildcard(t *testing.T) {
	tpl := mustParse(t, `
groups:
  anat:
    - attributes: {SeriesDescription: 'T1*'}
  exclude:
    - attributes: {}
`)

	c, err := New([]*template.Template{tpl})
	require.NoError(t, err)

	for value, group := range map[string]string{"T1w": "anat", "T1": "anat", "xT1w": "exclude"} {
		m, err := c.Classify(source.Attributes{"SeriesDescription": value})
		require.NoError(t, err)
		assert.Equal(t, group, m.Group, value)
	}
}

func TestClassifyPartialNoMatch(t *testing.T) {
	tpl := mustParse(t, "groups:\n  anat:\n    - attributes: {SeriesDescription: '*T1*'}\n", template.Partial())

	c, err := New([]*template.Template{tpl})
	require.NoError(t, err)

	_, err = c.Classify(source.Attributes{"SeriesDescription": "bold"})
	require.Error(t, err)
	assert.True(t, errors.IsNoMatch(err))

	// Cached misses report the same error.
	_, err = c.Classify(source.Attributes{"SeriesDescription": "bold"})
	assert.True(t, errors.IsNoMatch(err))
}

func TestClassifyChain(t *testing.T) {
	prior := mustParse(t, `
groups:
  func:
    - provenance: /raw/sub-01/005
      attributes: {SeriesDescription: 'T1_special'}
      entities: {task: special, suffix: bold}
  exclude:
    - attributes: {}
`)
	primary := mustParse(t, anatTemplate)

	c, err := New([]*template.Template{prior, primary})
	require.NoError(t, err)

	m, err := c.Classify(source.Attributes{"SeriesDescription": "T1_special"})
	require.NoError(t, err)
	assert.Equal(t, "func", m.Group)
	assert.Equal(t, 0, m.Layer)
	assert.Same(t, prior, m.Template)

	// The prior's catch-all is skipped: the primary decides.
	m, err = c.Classify(source.Attributes{"SeriesDescription": "T1w"})
	require.NoError(t, err)
	assert.Equal(t, "anat", m.Group)
	assert.Equal(t, 1, m.Layer)

	assert.Len(t, c.Templates(), 2)
}

func TestClassifyCache(t *testing.T) {
	tpl := mustParse(t, anatTemplate)

	c, err := New([]*template.Template{tpl}, WithCacheSize(2))
	require.NoError(t, err)

	for i := range 5 {
		_, err := c.Classify(source.Attributes{"SeriesDescription": fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.CacheLen())

	first, err := c.Classify(source.Attributes{"SeriesDescription": "T1", "EchoTime": 0.01})
	require.NoError(t, err)

	// Same string forms hit the cache and return the same rule.
	second, err := c.Classify(source.Attributes{"EchoTime": "0.01", "SeriesDescription": "T1"})
	require.NoError(t, err)
	assert.Same(t, first.Rule, second.Rule)

	uncached, err := New([]*template.Template{tpl}, WithCacheSize(0))
	require.NoError(t, err)

	_, err = uncached.Classify(source.Attributes{})
	require.NoError(t, err)
	assert.Zero(t, uncached.CacheLen())
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]*template.Template{nil})
	assert.Error(t, err)
}
