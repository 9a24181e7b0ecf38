// Package config loads parafs server configuration by layering defaults,
// an optional YAML file and environment overrides, the way the teacher
// server's pkg/config layers flags/file/env for its HTTP configuration.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Config   string
	RootDir  string
	Set      map[string]bool
}

// ParseFlags parses command-line flags and returns them as a Flags struct.
func ParseFlags() Flags {
	cfgPtr := flag.String("config", "./parafs.yaml", "path to config file")
	rootPtr := flag.String("root", "", "collection table root directory (overrides config)")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Config: *cfgPtr, RootDir: *rootPtr, Set: set}
}

// Load reads and parses a YAML config file at path, merging it onto the
// package defaults. A missing file is not an error: Defaults() is returned
// unchanged so a fresh checkout runs with sane values.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the PARAFS_CONFIG environment variable when the flag was not
// explicitly set.
func ResolveConfigPath(flags Flags) string {
	if flags.Set["config"] {
		return flags.Config
	}
	if p := os.Getenv("PARAFS_CONFIG"); p != "" {
		return p
	}
	return flags.Config
}

// ApplyOverrides layers flag and environment overrides onto cfg, in that
// precedence order (flags win over env, env wins over the file).
func ApplyOverrides(cfg *Config, flags Flags) {
	if v := os.Getenv("PARAFS_ROOT_DIR"); v != "" {
		cfg.Collection.RootDir = v
	}
	if v := os.Getenv("PARAFS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARAFS_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if flags.Set["root"] {
		cfg.Collection.RootDir = flags.RootDir
	}
}
