package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

// EnvPrefix prefixes environment overrides, e.g. SFISUM_HASH.
const EnvPrefix = "SFISUM"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Console    string            `mapstructure:"console" yaml:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// WorkersConfig sets the hasher pool sizes. Zero means sized by the tuner.
type WorkersConfig struct {
	Small int `mapstructure:"small" yaml:"small"`
	Large int `mapstructure:"large" yaml:"large"`
}

// Config represents the application configuration.
type Config struct {
	Hash             string        `mapstructure:"hash" yaml:"hash"`
	Threshold        string        `mapstructure:"threshold" yaml:"threshold"`
	Workers          WorkersConfig `mapstructure:"workers" yaml:"workers"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	Exclude          []string      `mapstructure:"exclude" yaml:"exclude"`
	OutputDir        string        `mapstructure:"output_dir" yaml:"output_dir"`
	Format           string        `mapstructure:"format" yaml:"format"`
	History          HistoryConfig `mapstructure:"history" yaml:"history"`
	Logging          LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// HashType resolves the configured algorithm.
func (c *Config) HashType() (digest.Type, error) {
	return digest.ParseType(c.Hash)
}

// ThresholdBytes parses the small/large file threshold.
func (c *Config) ThresholdBytes() (int64, error) {
	n, err := types.ParseSize(c.Threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", c.Threshold, err)
	}
	return n, nil
}

// Validate checks the values that have a fixed domain.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.HashType(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ThresholdBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers.Small < 0 || c.Workers.Large < 0 {
		errs = append(errs, fmt.Errorf("worker counts cannot be negative (small=%d, large=%d)", c.Workers.Small, c.Workers.Large))
	}
	return errors.Join(errs...)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("hash", DefaultHash)
	v.SetDefault("threshold", DefaultThreshold)
	v.SetDefault("workers.small", 0)
	v.SetDefault("workers.large", 0)
	v.SetDefault("progress_interval", DefaultProgressInterval)
	v.SetDefault("exclude", []string{})
	v.SetDefault("output_dir", "")
	v.SetDefault("format", DefaultFormat)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means DataDir()/history
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"walker":    "info",
		"hasher":    "info",
		"reconcile": "info",
		"engine":    "info",
	})
}

// Configure points v at the config file (cfgFile, or config.yaml in the
// config directories) and enables SFISUM_ environment overrides.
func Configure(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "sfisum"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "sfisum"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// ReadInConfig reads the configured file. A missing default config file is
// not an error; a missing explicit file is.
func ReadInConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// Load reads configuration from the default locations and the environment.
//
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/sfisum/config.yaml
//   - $HOME/.config/sfisum/config.yaml
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	Configure(v, path)
	if err := ReadInConfig(v); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and expands ~ in path settings.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.OutputDir, &cfg.History.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath()
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "sfisum"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "sfisum"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/sfisum.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "sfisum")
}

// StateDir returns $XDG_STATE_HOME/sfisum, where logs are written.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "sfisum")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// WriteDefault writes a commented default config file and returns its path.
// An existing file is left untouched unless force is set.
func WriteDefault(force bool) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check config file: %w", err)
		}
	}

	content := fmt.Sprintf(`# sfisum configuration

# Hash algorithm for new manifests: md5, sha256, b2 (BLAKE2b-256), xxh128
hash: %s

# Files up to this size go to the small-file pool
threshold: %s

# Hasher pool sizes (0 = size from CPU count)
workers:
  small: 0
  large: 0

progress_interval: %s

# Glob patterns skipped while walking (matched against relative path or name)
exclude: []

# Where new manifests are written (empty = the audited directory)
output_dir: ""

# Report format: pretty, plain, json, yaml, paths, null
format: %s

# Run history
history:
  enabled: true
  # Empty means $XDG_DATA_HOME/sfisum/history
  path: ""
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/sfisum/sfisum.log
  path: ""
  # Mirror logs at or above this level to stderr (empty = off)
  console: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    walker: info
    hasher: info
    reconcile: info
    engine: info
`, DefaultHash, DefaultThreshold, DefaultProgressInterval, DefaultFormat, DefaultRetentionDays)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
