package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, defaultAPIBind, cfg.Paths.APIBind)
	assert.Equal(t, defaultQueueCapacity, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, defaultDeepMaxInFlight, cfg.Deep.MaxInFlight)
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[pipeline]
overflow_policy = "  Drop_Oldest "
queue_capacity = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Paths.DataDir)
	assert.Equal(t, "drop_oldest", cfg.Pipeline.OverflowPolicy)
	assert.Equal(t, 8, cfg.Pipeline.QueueCapacity)
	// Untouched sections keep defaults.
	assert.Equal(t, defaultShallowContextWindow, cfg.Shallow.ContextWindow)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Paths.DataDir = "" }},
		{"zero context window", func(c *Config) { c.Shallow.ContextWindow = 0 }},
		{"similarity above one", func(c *Config) { c.Semantic.SimilarityThreshold = 1.5 }},
		{"unknown overflow policy", func(c *Config) { c.Pipeline.OverflowPolicy = "spill" }},
		{"negative capacity", func(c *Config) { c.Pipeline.QueueCapacity = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.normalize())
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, Default().Pipeline.NearDuplicateThreshold, cfg.Pipeline.NearDuplicateThreshold)
	assert.Equal(t, Default().Semantic.ContextLimit, cfg.Semantic.ContextLimit)
}

func TestArchiveAndLockPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/tmp/earmark-test"
	assert.Equal(t, "/tmp/earmark-test/transcript_archive.json", cfg.ArchivePath())
	assert.Equal(t, "/tmp/earmark-test/earmarkd.lock", cfg.LockPath())
}
