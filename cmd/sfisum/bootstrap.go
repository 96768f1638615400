package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

const defaultLogMaxSize = 10 * types.MiB

// loadConfig decodes the global viper state: file, environment and flags.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseRotationConfig converts config rotation settings, falling back to
// 10 MiB when max_size is empty or unparsable.
func parseRotationConfig(c config.RotationConfig) logging.RotationConfig {
	maxSize := defaultLogMaxSize
	if c.MaxSize != "" {
		if n, err := types.ParseSize(c.MaxSize); err == nil && n > 0 {
			maxSize = n
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     c.MaxAge,
		MaxBackups: c.MaxBackups,
		Daily:      c.Daily,
	}
}

// initializeLogging is the root PersistentPreRunE hook. It makes sure the
// state directory exists and starts file logging.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	path := cfg.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	console := cfg.Logging.Console
	if getVerbose() {
		console = "debug"
	}

	return logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Path:       path,
		Rotation:   parseRotationConfig(cfg.Logging.Rotation),
		Components: cfg.Logging.Components,
		Console:    console,
	})
}
