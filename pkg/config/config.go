package config

import (
	"fmt"
	"os"
	"time"

	"github.com/quiverio/quiver/pkg/scheduler"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk run configuration, unmarshalled directly from
// YAML the way cmd/warren/apply.go unmarshals a WarrenResource: a plain
// struct, yaml tags, validated by hand after decoding.
type Config struct {
	InputPath  string       `yaml:"input_path"`
	OutputPath string       `yaml:"output_path"`
	TagMap     types.TagMap `yaml:"tag_map"`

	Compression CompressionSection `yaml:"compression"`
	Buffer      BufferSection      `yaml:"buffer"`
	Scheduler   SchedulerSection   `yaml:"scheduler"`
	Bus         BusSection         `yaml:"bus"`

	// LocalWorkers overrides the local scheduler's pool size. Zero
	// means min(runtime.NumCPU(), job count). Ignored when Bus is set.
	LocalWorkers int `yaml:"local_workers"`
}

// CompressionSection configures the output store's codec.
type CompressionSection struct {
	Codec     types.CompressionCodec `yaml:"codec"`
	Level     int                    `yaml:"level"`
	Checksums bool                   `yaml:"checksums"`
}

// BufferSection bounds a worker's stream buffer.
type BufferSection struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// SchedulerSection overrides the distributed scheduler's collective
// write threshold and protocol-loop tick interval.
type SchedulerSection struct {
	WriterThreshold int           `yaml:"writer_threshold"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

// BusSection configures the TCP message bus for the distributed
// backend. Listen is this rank's own address; Peers is the full
// rank-ordered address list, including Listen at index Rank, matching
// bus.DialTCPBus's addrs parameter.
type BusSection struct {
	Listen string   `yaml:"listen"`
	Peers  []string `yaml:"peers"`
}

// Load reads and decodes the YAML document at path, applying defaults
// and rejecting configs missing required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Compression.Codec == "" {
		cfg.Compression.Codec = types.CompressionNone
	}
	if cfg.Buffer.MaxBytes <= 0 {
		cfg.Buffer.MaxBytes = 256 << 20
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields Load cannot default its way around.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("config: input_path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("config: output_path is required")
	}
	if len(c.TagMap) == 0 {
		return fmt.Errorf("config: tag_map must have at least one entry")
	}
	switch c.Compression.Codec {
	case types.CompressionNone, types.CompressionLZ4:
	default:
		return fmt.Errorf("config: unknown compression codec %q", c.Compression.Codec)
	}
	if len(c.Bus.Peers) > 0 {
		if c.Bus.Listen == "" {
			return fmt.Errorf("config: bus.listen is required when bus.peers is set")
		}
		found := false
		for _, p := range c.Bus.Peers {
			if p == c.Bus.Listen {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("config: bus.listen %q must appear in bus.peers", c.Bus.Listen)
		}
	}
	return nil
}

// Rank returns this process's index into Bus.Peers, or -1 when no bus
// is configured (single-process local run).
func (c *Config) Rank() int {
	for i, addr := range c.Bus.Peers {
		if addr == c.Bus.Listen {
			return i
		}
	}
	return -1
}

// StoreCompression adapts CompressionSection into the store package's
// own config type.
func (c *Config) StoreCompression() store.CompressionConfig {
	return store.CompressionConfig{
		Codec:     c.Compression.Codec,
		Level:     c.Compression.Level,
		Checksums: c.Compression.Checksums,
	}
}

// SchedulerConfig adapts SchedulerSection and BufferSection into the
// scheduler package's own config type.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxBufferBytes:  c.Buffer.MaxBytes,
		WriterThreshold: c.Scheduler.WriterThreshold,
		TickInterval:    c.Scheduler.TickInterval,
	}
}
