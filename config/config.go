// Package config provides configuration loading and management for QuillOps.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quillworks/quillops/agent"
	"github.com/quillworks/quillops/gate"
	"github.com/quillworks/quillops/scheduler"
	"github.com/quillworks/quillops/suggest"
	"github.com/quillworks/quillops/tools"
	"github.com/quillworks/quillops/workflow/executor"
	"github.com/quillworks/quillops/workflow/planner"
)

// Config represents the complete QuillOps configuration.
type Config struct {
	Log         LogConfig           `yaml:"log"`
	NATS        NATSConfig          `yaml:"nats"`
	Metrics     MetricsConfig       `yaml:"metrics"`
	Templates   TemplatesConfig     `yaml:"templates"`
	Planner     planner.Config      `yaml:"planner"`
	Executor    executor.Config     `yaml:"executor"`
	Retry       tools.InvokerConfig `yaml:"retry"`
	Gate        gate.Config         `yaml:"gate"`
	Scheduler   scheduler.Config    `yaml:"scheduler"`
	Suggestions suggest.Config      `yaml:"suggestions"`
	Classifier  []agent.Rule        `yaml:"classifier"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables NATS; storage falls back
	// to memory and task events are not published.
	URL string `yaml:"url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the metrics HTTP listen address. Empty disables the
	// endpoint.
	Listen string `yaml:"listen"`
}

// TemplatesConfig configures intent template loading.
type TemplatesConfig struct {
	// Path is the intent templates YAML file.
	Path string `yaml:"path"`

	// Watch enables hot reload when the templates file changes.
	Watch bool `yaml:"watch"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		NATS: NATSConfig{
			URL: "",
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
		Templates: TemplatesConfig{
			Path:  "intent-templates.yaml",
			Watch: true,
		},
		Planner:     planner.DefaultConfig(),
		Executor:    executor.DefaultConfig(),
		Retry:       tools.DefaultInvokerConfig(),
		Gate:        gate.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
		Suggestions: suggest.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	if c.Templates.Path == "" {
		return fmt.Errorf("templates.path is required")
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Suggestions.Validate(); err != nil {
		return fmt.Errorf("suggestions: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over defaults.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.ApplyFile(path); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyFile overlays a YAML file onto the config. Only keys present in the
// file are overridden.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
