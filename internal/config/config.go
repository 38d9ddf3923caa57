// Package config loads requex settings from YAML. Command-line flags
// override file values, and file values override defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultDatabase        = "requex.db"
	defaultLogLevel        = "info"
	defaultFormat          = "text"
	defaultCheckpointEvery = 100
)

// Config holds settings shared by every command.
type Config struct {
	// Database is the path of the SQLite event journal.
	Database string `yaml:"database,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Format is the output format, text or json.
	Format string `yaml:"format,omitempty"`

	// CheckpointEvery makes `run` checkpoint after this many events, in
	// addition to the checkpoint written at end of input. 0 disables it.
	CheckpointEvery int `yaml:"checkpoint_every,omitempty"`
}

// DefaultConfig returns a Config with defaults for every field.
func DefaultConfig() Config {
	return Config{
		Database:        defaultDatabase,
		LogLevel:        defaultLogLevel,
		Format:          defaultFormat,
		CheckpointEvery: defaultCheckpointEvery,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source == nil {
		return
	}
	if source.Database != "" {
		c.Database = source.Database
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.Format != "" {
		c.Format = source.Format
	}
	if source.CheckpointEvery > 0 {
		c.CheckpointEvery = source.CheckpointEvery
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("config: database must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("config: format must be text or json, got %q", c.Format)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("config: checkpoint_every must not be negative, got %d", c.CheckpointEvery)
	}
	return nil
}

// Level returns the slog level for LogLevel, Info when it is invalid.
func (c *Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", name)
}

// Load reads a YAML config file, merges it over the defaults and validates
// the result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load over in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var loaded Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&loaded); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
