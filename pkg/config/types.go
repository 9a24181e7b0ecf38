package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a parafs server process.
type Config struct {
	Collection CollectionConfig `yaml:"collection"`
	Worker     WorkerConfig     `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
	Retention  RetentionConfig  `yaml:"retention"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CollectionConfig describes where the on-disk collection table root lives
// and how new collections are provisioned.
type CollectionConfig struct {
	RootDir           string   `yaml:"root_dir"`
	DefaultCollection string   `yaml:"default_collection"`
	PurgatoryWindow   Duration `yaml:"purgatory_window"`
	BstreamShardCount int      `yaml:"bstream_shard_count"`
	FormatVersion     string   `yaml:"format_version"`
}

// WorkerConfig controls the op-manager worker pools wired at startup.
type WorkerConfig struct {
	ThreadedQueues ThreadedQueuesConfig `yaml:"threaded_queues"`
	External       ExternalWorkerConfig `yaml:"external"`
	AsyncIO        AsyncIOConfig        `yaml:"async_io"`
}

// ThreadedQueuesConfig configures the threaded-queues worker variant.
type ThreadedQueuesConfig struct {
	ThreadCount  int      `yaml:"thread_count"`
	OpsPerQueue  int      `yaml:"ops_per_queue"`
	Timeout      Duration `yaml:"timeout"`
}

// ExternalWorkerConfig configures backpressure for the external worker variant.
type ExternalWorkerConfig struct {
	MaxPosts    int     `yaml:"max_posts"`
	RateLimit   float64 `yaml:"rate_limit_per_sec"`
	RateBurst   int     `yaml:"rate_burst"`
}

// AsyncIOConfig selects and tunes the bytestream async-I/O backend.
type AsyncIOConfig struct {
	Backend        string    `yaml:"backend"` // "thread" | "iouring"
	QueueDepth     int       `yaml:"queue_depth"`
	SegmentMax     SizeBytes `yaml:"segment_max"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// RetentionConfig holds configuration for the purgatory/stranded-bstream sweeper.
type RetentionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	BatchSize int    `yaml:"batch_size"`
	DryRun    bool   `yaml:"dry_run"`
}

// MetricsConfig controls the prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SizeBytes is a byte count, unmarshaled from human-friendly strings like
// "4MiB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration for YAML parsing from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Defaults returns a Config populated with the baseline values a fresh
// install should run with.
func Defaults() Config {
	return Config{
		Collection: CollectionConfig{
			RootDir:           "./.parafs",
			DefaultCollection: "default",
			PurgatoryWindow:   Duration(30 * time.Second),
			BstreamShardCount: 64,
			FormatVersion:     "1.0.0",
		},
		Worker: WorkerConfig{
			ThreadedQueues: ThreadedQueuesConfig{
				ThreadCount: 4,
				OpsPerQueue: 8,
				Timeout:     Duration(10 * time.Millisecond),
			},
			External: ExternalWorkerConfig{
				MaxPosts:  256,
				RateLimit: 1000,
				RateBurst: 64,
			},
			AsyncIO: AsyncIOConfig{
				Backend:    "thread",
				QueueDepth: 256,
				SegmentMax: SizeBytes(4 * 1024 * 1024),
			},
		},
		Logging: LoggingConfig{Level: "info"},
		Retention: RetentionConfig{
			Enabled:   true,
			Cron:      "*/5 * * * *",
			BatchSize: 1000,
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
	}
}
