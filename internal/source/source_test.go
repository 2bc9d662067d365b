package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "T1w", "T1w"},
		{"int", 12, "12"},
		{"float", 2.5, "2.5"},
		{"whole float", 3.0, "3"},
		{"bool", true, "true"},
		{"bytes", []byte("raw"), "raw"},
		{"string list", []string{"ORIGINAL", "PRIMARY", "M"}, `ORIGINAL\PRIMARY\M`},
		{"mixed list", []any{"ORIGINAL", 2, nil}, `ORIGINAL\2\`},
		{"empty list", []any{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Stringify(tt.input))
		})
	}
}

func TestAttributesGet(t *testing.T) {
	attrs := Attributes{"SeriesDescription": "t1_mprage", "EchoNumbers": 1}

	v, ok := attrs.Get("SeriesDescription")
	assert.True(t, ok)
	assert.Equal(t, "t1_mprage", v)

	v, ok = attrs.Get("Missing")
	assert.False(t, ok)
	assert.Empty(t, v)

	assert.Equal(t, "1", attrs.Value("EchoNumbers"))
	assert.Equal(t, []string{"EchoNumbers", "SeriesDescription"}, attrs.Keys())
}

func TestFingerprint(t *testing.T) {
	a := Attributes{"A": "1", "B": 2}
	b := Attributes{"B": "2", "A": 1}
	c := Attributes{"A": "1", "B": 3}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, Attributes{"AB": ""}.Fingerprint(), Attributes{"A": "B"}.Fingerprint())
}

func TestParseManifest(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		files, err := ParseManifest([]byte(`
- path: /raw/sub-01/ses-01/001/IM0001
  attributes:
    SeriesDescription: localizer_T1w
    ImageType: [ORIGINAL, PRIMARY]
- path: /raw/sub-01/ses-01/002/IM0001
`))
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "localizer_T1w", files[0].Attributes.Value("SeriesDescription"))
		assert.Equal(t, `ORIGINAL\PRIMARY`, files[0].Attributes.Value("ImageType"))
		assert.NotNil(t, files[1].Attributes)
	})

	t.Run("mapping and json", func(t *testing.T) {
		files, err := ParseManifest([]byte(`{"files": [{"path": "a", "attributes": {"EchoTime": 0.005}}]}`))
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "0.005", files[0].Attributes.Value("EchoTime"))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := ParseManifest([]byte(`- attributes: {A: 1}`))
		assert.ErrorContains(t, err, "no path")
	})

	t.Run("scalar root", func(t *testing.T) {
		_, err := ParseManifest([]byte(`hello`))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		files, err := ParseManifest(nil)
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestScanSidecars(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sub-01", "ses-02")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"SeriesDescription": "rest_bold"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"SeriesDescription": "t1"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.nii"), []byte("x"), 0o644))

	files, err := ScanSidecars(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "a"), files[0].Path)
	assert.Equal(t, "t1", files[0].Attributes.Value("SeriesDescription"))
	assert.Equal(t, "rest_bold", files[1].Attributes.Value("SeriesDescription"))
}

func TestScanSidecarsBadJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.json"), []byte(`{`), 0o644))

	_, err := ScanSidecars(root)
	assert.ErrorContains(t, err, "failed to parse sidecar")
}
