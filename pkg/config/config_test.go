package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), *cfg)
}

func TestLoadMergesYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parafs.yaml")
	yamlBody := `
collection:
  root_dir: /data/parafs
  purgatory_window: 2m
worker:
  async_io:
    backend: iouring
    segment_max: 8MiB
retention:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/parafs", cfg.Collection.RootDir)
	require.Equal(t, 2*time.Minute, cfg.Collection.PurgatoryWindow.Duration())
	require.Equal(t, "iouring", cfg.Worker.AsyncIO.Backend)
	require.EqualValues(t, 8*1024*1024, cfg.Worker.AsyncIO.SegmentMax.Int64())
	require.False(t, cfg.Retention.Enabled)
	// fields not present in the YAML keep their default values.
	require.Equal(t, "default", cfg.Collection.DefaultCollection)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parafs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection: [this is not a mapping"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveConfigPathPrefersExplicitFlagOverEnv(t *testing.T) {
	t.Setenv("PARAFS_CONFIG", "/env/path.yaml")
	path := ResolveConfigPath(Flags{Config: "/flag/path.yaml", Set: map[string]bool{"config": true}})
	require.Equal(t, "/flag/path.yaml", path)
}

func TestResolveConfigPathFallsBackToEnvThenDefault(t *testing.T) {
	t.Setenv("PARAFS_CONFIG", "/env/path.yaml")
	path := ResolveConfigPath(Flags{Config: "./parafs.yaml", Set: map[string]bool{}})
	require.Equal(t, "/env/path.yaml", path)

	os.Unsetenv("PARAFS_CONFIG")
	path = ResolveConfigPath(Flags{Config: "./parafs.yaml", Set: map[string]bool{}})
	require.Equal(t, "./parafs.yaml", path)
}

func TestApplyOverridesPrecedenceFlagsBeatEnv(t *testing.T) {
	t.Setenv("PARAFS_ROOT_DIR", "/env/root")
	cfg := Defaults()
	ApplyOverrides(&cfg, Flags{RootDir: "/flag/root", Set: map[string]bool{"root": true}})
	require.Equal(t, "/flag/root", cfg.Collection.RootDir)
}

func TestApplyOverridesEnvWinsOverFileWhenNoFlag(t *testing.T) {
	t.Setenv("PARAFS_LOG_LEVEL", "debug")
	cfg := Defaults()
	ApplyOverrides(&cfg, Flags{Set: map[string]bool{}})
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestSizeBytesUnmarshalAcceptsPlainIntegers(t *testing.T) {
	var s SizeBytes
	require.NoError(t, s.UnmarshalYAML(&yaml.Node{Value: "1048576"}))
	require.EqualValues(t, 1048576, s.Int64())
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	var d Duration
	err := d.UnmarshalYAML(&yaml.Node{Value: "not-a-duration"})
	require.Error(t, err)
}
