package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML). Every field is optional.
type Config struct {
	Decoder DecoderConfig `yaml:"decoder"`
	Range   RangeConfig   `yaml:"range"`
	Log     LogConfig     `yaml:"log"`
}

type DecoderConfig struct {
	// DisableDecompress feeds file content to the decoder exactly as read.
	DisableDecompress bool `yaml:"disable_decompress"`
}

type RangeConfig struct {
	DateColumn string `yaml:"date_column"`
	// Format forces the loader: feather, parquet or json. Empty picks by extension.
	Format string `yaml:"format"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // console or json
}

const (
	DefaultDateColumn = "date"
	DefaultLogLevel   = "warn"
	DefaultEncoding   = "console"
)

var (
	formats   = map[string]bool{"": true, "feather": true, "parquet": true, "json": true}
	levels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	encodings = map[string]bool{"console": true, "json": true}
)

// Default is the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, fills in defaults and validates the result. An empty path
// yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked parses the file without defaults or validation.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Range.DateColumn == "" {
		c.Range.DateColumn = DefaultDateColumn
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = DefaultEncoding
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !formats[c.Range.Format] {
		return fmt.Errorf("range.format %q is not one of feather, parquet, json", c.Range.Format)
	}
	if c.Range.DateColumn == "" {
		return errors.New("range.date_column is required")
	}
	if !levels[c.Log.Level] {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if !encodings[c.Log.Encoding] {
		return fmt.Errorf("log.encoding %q is not one of console, json", c.Log.Encoding)
	}
	return nil
}

// Merge overlays non-zero fields from override onto base.
// This is used to apply command-line flags on top of a loaded file.
func Merge(base, override Config) Config {
	out := base
	if override.Decoder.DisableDecompress {
		out.Decoder.DisableDecompress = true
	}
	if override.Range.DateColumn != "" {
		out.Range.DateColumn = override.Range.DateColumn
	}
	if override.Range.Format != "" {
		out.Range.Format = override.Range.Format
	}
	if override.Log.Level != "" {
		out.Log.Level = override.Log.Level
	}
	if override.Log.Encoding != "" {
		out.Log.Encoding = override.Log.Encoding
	}
	return out
}
