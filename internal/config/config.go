/*
PURPOSE:
  Defines the configuration structure and loading logic for the sweep runner.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Configure endpoint, model, sweep axes, repetitions, monitoring and outputs.
  - One engine for every model; per-model defaults live in profiles.

  Implementation-discovered:
  - Axes are comma lists (same syntax as the CLI flags).
  - CLI flags override file values only when explicitly set.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to defaults.
  - Validate returns *model.ConfigurationError.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (e.g., 600s job timeout).

USAGE:
  cfg, err := config.Load("sweep.yaml")
  cfg.ApplyProfile()
  err = cfg.Validate()

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/run.go
  - internal/config/profiles.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// Config represents the full configuration for one sweep.
type Config struct {
	Host    string `yaml:"host"`
	Model   string `yaml:"model"`
	Profile string `yaml:"profile"`

	Prompts    []string `yaml:"prompts"`
	PromptFile string   `yaml:"prompt_file"`
	Images     []string `yaml:"images"`
	ImageDir   string   `yaml:"image_dir"`

	// Comma-separated axis lists. A nil Seeds takes the profile value;
	// an empty one means a single unseeded run.
	Contexts     string  `yaml:"ctx"`
	NumPredict   string  `yaml:"num_predict"`
	Temperatures string  `yaml:"temp"`
	Seeds        *string `yaml:"seed"`

	Runs    int           `yaml:"runs"`
	Cycles  int           `yaml:"cycles"`
	Mode    string        `yaml:"mode"`
	Warmup  bool          `yaml:"warmup"`
	Sleep   time.Duration `yaml:"sleep"`
	Timeout time.Duration `yaml:"timeout"`

	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	ImageWorkers int           `yaml:"image_workers"`

	Monitor MonitorConfig `yaml:"monitor"`
	Output  OutputConfig  `yaml:"output"`
	Probe   ProbeConfig   `yaml:"probe"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Profiles extend or override the built-in model profiles.
	Profiles map[string]Profile `yaml:"profiles"`
}

type MonitorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

type OutputConfig struct {
	JSONL       string `yaml:"jsonl"`
	CSV         string `yaml:"csv"`
	Parquet     string `yaml:"parquet"`
	MonitorFile string `yaml:"monitor_file"`
	Chart       string `yaml:"chart"`
	ProgressBar bool   `yaml:"progress_bar"`
}

type ProbeConfig struct {
	Attempts         int           `yaml:"attempts"`
	Delay            time.Duration `yaml:"delay"`
	Timeout          time.Duration `yaml:"timeout"`
	MinServerVersion string        `yaml:"min_server_version"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "http://localhost:11434",
		Model:        "llama3.2-vision:11b",
		Runs:         3,
		Cycles:       1,
		Sleep:        1 * time.Second,
		Timeout:      600 * time.Second,
		MaxRetries:   1,
		RetryDelay:   2 * time.Second,
		ImageWorkers: 4,
		Monitor: MonitorConfig{
			Enabled:     true,
			Interval:    500 * time.Millisecond,
			JoinTimeout: 2 * time.Second,
		},
		Output: OutputConfig{
			ProgressBar: true,
		},
		Probe: ProbeConfig{
			Attempts: 10,
			Delay:    1 * time.Second,
			Timeout:  2 * time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		found := false
		for _, name := range []string{"sweep.yaml", "sweep.yml", "ollama_sweep.yaml"} {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the settings that are fatal before any job runs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &model.ConfigurationError{Field: "host", Reason: "endpoint URL is empty"}
	}
	if c.Model == "" {
		return &model.ConfigurationError{Field: "model", Reason: "model identifier is empty"}
	}
	if c.Runs < 1 {
		return &model.ConfigurationError{Field: "runs", Reason: fmt.Sprintf("must be >= 1, got %d", c.Runs)}
	}
	if c.Cycles < 1 {
		return &model.ConfigurationError{Field: "cycles", Reason: fmt.Sprintf("must be >= 1, got %d", c.Cycles)}
	}
	if c.Sleep < 0 {
		return &model.ConfigurationError{Field: "sleep", Reason: "must not be negative"}
	}
	if c.Timeout <= 0 {
		return &model.ConfigurationError{Field: "timeout", Reason: "must be positive"}
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if _, err := model.ParseMode(c.Mode); err != nil {
		return err
	}
	return nil
}
