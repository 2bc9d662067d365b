package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

func TestLint(t *testing.T) {
	tpl, err := template.Parse([]byte(`
groups:
  anat:
    - attributes:
        SeriesDescrption: '*T1*'
        EchoNumbers: 1
        Modality:
  exclude:
    - attributes: {}
`))
	require.NoError(t, err)

	files := []source.File{
		{Path: "a", Attributes: source.Attributes{"SeriesDescription": "t1", "EchoNumbers": 1}},
		{Path: "b", Attributes: source.Attributes{"ProtocolName": "x"}},
	}

	diags := Lint(tpl, files)
	require.Len(t, diags.Warnings, 1)

	w := diags.Warnings[0]
	assert.Equal(t, "unknown_attribute", w.Code)
	assert.Equal(t, "anat[0]", w.Location)
	assert.Equal(t, "SeriesDescrption", w.Key)
	assert.Equal(t, []string{"SeriesDescription"}, w.Suggestions)
}

func TestLintWithoutSources(t *testing.T) {
	tpl, err := template.Parse([]byte("groups:\n  anat:\n    - attributes: {A: x, B: '*'}\n"), template.Partial())
	require.NoError(t, err)

	assert.True(t, Lint(tpl, nil).IsValid())
	assert.Empty(t, Lint(tpl, nil).Warnings)
	assert.Empty(t, Lint(nil, []source.File{{Path: "a"}}).Warnings)
}
