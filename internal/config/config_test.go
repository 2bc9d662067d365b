package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sub-", cfg.Naming.SubjectPrefix)
	assert.Equal(t, "ses-", cfg.Naming.SessionPrefix)
	assert.Equal(t, "suffix", cfg.Naming.SuffixEntity)
	assert.True(t, cfg.Naming.Sanitize)
	assert.Equal(t, "extra_data", cfg.Template.Unassigned)
	assert.Equal(t, "exclude", cfg.Template.Discard)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 1024, cfg.Engine.CacheSize)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, cfg, Default())
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, UserDir), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, UserDir, FileName), []byte(`
[naming]
subject_prefix = "P"
session_prefix = "V"
`), 0o644))

	project := filepath.Join(dir, "study")
	require.NoError(t, os.MkdirAll(filepath.Join(project, "raw"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(project, FileName), []byte(`
[naming]
session_prefix = "visit-"

[engine]
workers = 2
`), 0o644))

	t.Chdir(filepath.Join(project, "raw"))
	t.Setenv("BIDSMAPPER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "P", cfg.Naming.SubjectPrefix)
	assert.Equal(t, "visit-", cfg.Naming.SessionPrefix)
	assert.True(t, cfg.Naming.Sanitize)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Equal(t, filepath.Join(project, FileName), FindProjectConfig())
}

func TestLoadExplicitMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine\nworkers = "), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "bad.toml")
}

func TestWriteRoundTrip(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.Naming.Sanitize = false
	cfg.Engine.Workers = 16
	cfg.Engine.Preferences = map[string]string{"part": "mag"}
	cfg.Template.Discard = "discard"

	path := filepath.Join(dir, "conf", "out.toml")
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// A second write keeps the previous file as a backup.
	cfg.Engine.Workers = 1
	require.NoError(t, Write(path, cfg))

	_, err = os.Stat(path + ".back")
	assert.NoError(t, err)
}
