package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Debug bool   `yaml:"debug"`
}

func TestReadYAMLFromSiteDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readyaml_test.yml"), []byte("name: promoter\ndebug: true\n"), 0644))
	t.Setenv("SITE_DATA_DIR", dir)

	var cfg testConfig
	msgs, fname, err := ReadYAML("readyaml_test.yml", nil, &cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "readyaml_test.yml"), fname)
	assert.NotEmpty(t, msgs)
	assert.Equal(t, testConfig{Name: "promoter", Debug: true}, cfg)
}

func TestReadYAMLMissing(t *testing.T) {
	t.Setenv("SITE_DATA_DIR", "")
	var cfg testConfig
	_, _, err := ReadYAML("no_such_file.yml", nil, &cfg)
	assert.Error(t, err)
}

func TestReadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("name: [unclosed\n"), 0644))
	t.Setenv("SITE_DATA_DIR", dir)
	var cfg testConfig
	_, _, err := ReadYAML("bad.yml", nil, &cfg)
	assert.Error(t, err)
}
