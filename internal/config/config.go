package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Colour modes
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the command line tool configuration. None of it changes how
// programs are rewritten.
type Config struct {
	Log LogConfig `yaml:"log"`

	// Color is one of auto, always or never
	Color string `yaml:"color"`

	// Verify runs the IR verifier after instrumenting
	Verify bool `yaml:"verify"`

	// Output is where instrumented IR is written; empty means stdout
	Output string `yaml:"output,omitempty"`

	Run RunConfig `yaml:"run"`
}

// LogConfig controls the tool's own logging
type LogConfig struct {
	// Verbosity follows commonlog: -4 silences, 0 is notice, 2 is debug
	Verbosity int `yaml:"verbosity"`

	// File receives log lines instead of stderr
	File string `yaml:"file,omitempty"`
}

// RunConfig controls the interpreter behind the run command
type RunConfig struct {
	// Dir is where the interpreted program opens its files
	Dir string `yaml:"dir,omitempty"`

	MaxSteps int `yaml:"max_steps"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log:    LogConfig{Verbosity: -2},
		Color:  ColorAuto,
		Verify: true,
		Run:    RunConfig{MaxSteps: 1_000_000},
	}
}

// Load reads a YAML configuration file. Fields missing from the file keep
// their default values; unknown fields are rejected.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes configuration YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parsing YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return errors.Errorf("invalid color mode %q: must be auto, always or never", c.Color)
	}
	if c.Run.MaxSteps <= 0 {
		return errors.Errorf("run.max_steps must be positive, got %d", c.Run.MaxSteps)
	}
	return nil
}

// LogPath returns the log file for commonlog.Configure, nil for stderr
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.Log.File
	return &path
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
