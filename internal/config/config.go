// Package config loads and validates the service configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// Config represents the complete service configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Buffer configures the per-station ingestion buffers.
	Buffer BufferConfig `yaml:"buffer"`

	// Store configures the durable reading store.
	Store StoreConfig `yaml:"store"`

	// Artifact configures the generated-output blob store.
	Artifact ArtifactConfig `yaml:"artifact"`

	// Catalog configures metadata persistence.
	Catalog CatalogConfig `yaml:"catalog"`

	// Pipeline configures stack generation.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// MQTT configures the optional station feed subscriber.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Scheduler configures the periodic buffer sweep.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Stations maps station ids to fixed coordinates. The aggregation read
	// path needs these to place committed readings on the grid.
	Stations map[string]StationLocation `yaml:"stations"`
}

// StationLocation is the fixed coordinate of one station.
type StationLocation struct {
	// Lat is the latitude in degrees.
	Lat float64 `yaml:"lat"`

	// Lon is the longitude in degrees.
	Lon float64 `yaml:"lon"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownGrace is how long in-flight requests get on shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// BufferConfig configures the per-station ingestion buffers.
type BufferConfig struct {
	// MaxSize is the capacity of each station buffer.
	MaxSize int `yaml:"max_size"`

	// AutoProcess enables threshold-triggered flushing.
	AutoProcess bool `yaml:"auto_process"`

	// ProcessThreshold is the occupancy that triggers a flush when
	// AutoProcess is on. Clamped to MaxSize.
	ProcessThreshold int `yaml:"process_threshold"`
}

// StoreConfig configures the durable reading store.
type StoreConfig struct {
	// Driver is one of: memory, parquet, postgres.
	Driver string `yaml:"driver"`

	// Parquet configures the parquet driver.
	Parquet ParquetConfig `yaml:"parquet"`

	// Postgres configures the postgres driver.
	Postgres PostgresConfig `yaml:"postgres"`
}

// ParquetConfig configures the parquet store driver.
type ParquetConfig struct {
	// Dir is the directory batch files are written to.
	Dir string `yaml:"dir"`

	// Compression is the column compression: snappy, zstd, lz4, none.
	Compression string `yaml:"compression"`
}

// PostgresConfig configures the postgres store driver.
type PostgresConfig struct {
	// DSN is the connection string.
	DSN string `yaml:"dsn"`

	// MaxConns caps the connection pool.
	MaxConns int32 `yaml:"max_conns"`
}

// ArtifactConfig configures the generated-output blob store.
type ArtifactConfig struct {
	// Driver is one of: memory, fs, s3.
	Driver string `yaml:"driver"`

	// Root is the base directory for the fs driver.
	Root string `yaml:"root"`

	// S3 configures the s3 driver.
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the s3 artifact driver.
type S3Config struct {
	// Bucket is the target bucket name.
	Bucket string `yaml:"bucket"`

	// Region is the bucket region.
	Region string `yaml:"region"`

	// Endpoint overrides the AWS endpoint for S3-compatible stores.
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey are static credentials. Empty means the
	// default AWS credential chain.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// PathStyle enables path-style addressing (MinIO).
	PathStyle bool `yaml:"path_style"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
}

// CatalogConfig configures metadata persistence.
type CatalogConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// PipelineConfig configures stack generation.
type PipelineConfig struct {
	// GenerationTimeout is the default deadline for one generation run.
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

// MQTTConfig configures the optional station feed subscriber.
type MQTTConfig struct {
	// Enabled turns the subscriber on.
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker"`

	// Topic is the subscription topic filter.
	Topic string `yaml:"topic"`

	// ClientID identifies this subscriber to the broker.
	ClientID string `yaml:"client_id"`

	// Username and Password are optional broker credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SchedulerConfig configures the periodic buffer sweep.
type SchedulerConfig struct {
	// Enabled turns the sweep on.
	Enabled bool `yaml:"enabled"`

	// SweepInterval is how often idle buffers are flushed.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a YAML file, falling back to
// DefaultConfig when the file does not exist. Any other failure, including
// an unreadable or invalid file, is returned to the caller.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return config, err
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Buffer: BufferConfig{
			MaxSize:          1000,
			AutoProcess:      true,
			ProcessThreshold: 800,
		},
		Store: StoreConfig{
			Driver: "parquet",
			Parquet: ParquetConfig{
				Dir:         "./data/readings",
				Compression: "zstd",
			},
			Postgres: PostgresConfig{
				MaxConns: 8,
			},
		},
		Artifact: ArtifactConfig{
			Driver: "fs",
			Root:   "./data/artifacts",
		},
		Catalog: CatalogConfig{
			Path: "./data/geostack.db",
		},
		Pipeline: PipelineConfig{
			GenerationTimeout: 5 * time.Minute,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			Topic:    "stations/+/readings",
			ClientID: "geostackd",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Buffer.MaxSize <= 0 {
		return fmt.Errorf("%w: buffer.max_size must be positive", apperrors.ErrInvalidConfig)
	}
	if c.Buffer.ProcessThreshold < 0 {
		return fmt.Errorf("%w: buffer.process_threshold must not be negative", apperrors.ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case "memory", "parquet":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("%w: store.postgres.dsn required for postgres driver", apperrors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", apperrors.ErrInvalidConfig, c.Store.Driver)
	}

	switch c.Artifact.Driver {
	case "", "memory", "fs":
	case "s3":
		if c.Artifact.S3.Bucket == "" {
			return fmt.Errorf("%w: artifact.s3.bucket required for s3 driver", apperrors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown artifact driver %q", apperrors.ErrInvalidConfig, c.Artifact.Driver)
	}

	if c.Pipeline.GenerationTimeout <= 0 {
		return fmt.Errorf("%w: pipeline.generation_timeout must be positive", apperrors.ErrInvalidConfig)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker required when mqtt is enabled", apperrors.ErrInvalidConfig)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("%w: mqtt.topic required when mqtt is enabled", apperrors.ErrInvalidConfig)
		}
	}

	if c.Scheduler.Enabled && c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("%w: scheduler.sweep_interval must be positive", apperrors.ErrInvalidConfig)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", apperrors.ErrInvalidConfig, c.Logging.Level)
	}

	return nil
}
