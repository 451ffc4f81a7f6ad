package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9090"
buffer:
  max_size: 50
  auto_process: true
  process_threshold: 10
store:
  driver: memory
scheduler:
  enabled: false
logging:
  level: debug
  json: true
stations:
  st-1:
    lat: 6.25
    lon: -75.56
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Buffer.MaxSize != 50 || cfg.Buffer.ProcessThreshold != 10 {
		t.Errorf("Buffer = %+v, want max 50 threshold 10", cfg.Buffer)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = true, want false")
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v, want debug json", cfg.Logging)
	}
	if loc, ok := cfg.Stations["st-1"]; !ok || loc.Lat != 6.25 || loc.Lon != -75.56 {
		t.Errorf("Stations[st-1] = %+v, want 6.25/-75.56", loc)
	}

	// Untouched sections keep defaults.
	if cfg.Pipeline.GenerationTimeout != 5*time.Minute {
		t.Errorf("GenerationTimeout = %v, want default 5m", cfg.Pipeline.GenerationTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load missing file = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadOrDefault_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault missing file = %v, want nil", err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("Addr = %q, want default %q", cfg.Server.Addr, DefaultConfig().Server.Addr)
	}
}

func TestLoadOrDefault_InvalidFileStillFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("buffer:\n  max_size: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); !apperrors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("LoadOrDefault = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_InvalidContentFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: oracle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !apperrors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("Load = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero buffer size", func(c *Config) { c.Buffer.MaxSize = 0 }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres"; c.Store.Postgres.DSN = "" }},
		{"s3 without bucket", func(c *Config) { c.Artifact.Driver = "s3"; c.Artifact.S3.Bucket = "" }},
		{"zero generation timeout", func(c *Config) { c.Pipeline.GenerationTimeout = 0 }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperrors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
