// Package config loads skylink settings from defaults, an optional
// skylink.toml, and SKYLINK_* environment variables (highest precedence).
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"skylink/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g.
// SKYLINK_STORAGE_DRIVER or SKYLINK_BLOB_S3_BUCKET.
const EnvPrefix = "SKYLINK"

// FileName is the project configuration file searched for upwards from the
// working directory.
const FileName = "skylink.toml"

// Config is the full runtime configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Session SessionConfig `mapstructure:"session"`
	Export  ExportConfig  `mapstructure:"export"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// BlobConfig selects the artifact store backend.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config carries S3 / MinIO settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// MetricsConfig selects the metrics recorder.
type MetricsConfig struct {
	Backend   string `mapstructure:"backend"`
	Namespace string `mapstructure:"namespace"`
}

// SessionConfig tunes the engine.
type SessionConfig struct {
	AutoReconcile       bool `mapstructure:"auto_reconcile"`
	DiagnosticsCapacity int  `mapstructure:"diagnostics_capacity"`
	RunnerConcurrency   int  `mapstructure:"runner_concurrency"`
}

// ExportConfig tunes the artifact export worker.
type ExportConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Prefix    string `mapstructure:"prefix"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "skylink.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./artifacts")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)

	v.SetDefault("metrics.backend", "expvar")
	v.SetDefault("metrics.namespace", "skylink")

	v.SetDefault("session.auto_reconcile", true)
	v.SetDefault("session.diagnostics_capacity", 256)
	v.SetDefault("session.runner_concurrency", 4)

	v.SetDefault("export.queue_size", 16)
	v.SetDefault("export.prefix", "exports")
}

// New builds a viper instance with defaults and environment binding but no
// config file.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. An explicit path must exist; otherwise the nearest
// skylink.toml above the working directory is used when present.
func Load(path string) (Config, error) {
	v := New()
	if path == "" {
		path = findProjectConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return errors.Newf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory", "s3":
	default:
		return errors.Newf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return errors.WithHint(errors.New("blob.s3.bucket required for s3 driver"), "set SKYLINK_BLOB_S3_BUCKET")
	}
	switch c.Metrics.Backend {
	case "expvar", "prometheus", "none":
	default:
		return errors.Newf("unknown metrics backend %q", c.Metrics.Backend)
	}
	if c.Session.DiagnosticsCapacity < 0 || c.Session.RunnerConcurrency < 0 {
		return errors.New("session limits must not be negative")
	}
	return nil
}

func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
