package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Log.Level)
	}
	if cfg.Templates.Path != "intent-templates.yaml" || !cfg.Templates.Watch {
		t.Errorf("unexpected template defaults: %+v", cfg.Templates)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("expected 4 retry attempts by default, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Scheduler.IterationCeiling != 5 {
		t.Errorf("expected iteration ceiling 5, got %d", cfg.Scheduler.IterationCeiling)
	}
	if cfg.Gate.SafetyMargin != 0.7 {
		t.Errorf("expected safety margin 0.7, got %v", cfg.Gate.SafetyMargin)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"missing templates path", func(c *Config) { c.Templates.Path = "" }},
		{"bad executor concurrency", func(c *Config) { c.Executor.Concurrency = 0 }},
		{"bad retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bad gate margin", func(c *Config) { c.Gate.SafetyMargin = 2.0 }},
		{"bad scheduler tick", func(c *Config) { c.Scheduler.TickInterval = 0 }},
		{"bad suggestion cool-down", func(c *Config) { c.Suggestions.CoolDown = -time.Hour }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestApplyFile_OverlaysOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quillops.yaml")
	content := `
log:
  level: debug
nats:
  url: nats://localhost:4222
scheduler:
  iteration_ceiling: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected overridden level, got %s", cfg.Log.Level)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected overridden NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Scheduler.IterationCeiling != 3 {
		t.Errorf("expected overridden ceiling, got %d", cfg.Scheduler.IterationCeiling)
	}
	// Keys absent from the file keep their defaults
	if cfg.Scheduler.TickInterval != 30*time.Second {
		t.Errorf("expected default tick interval, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Templates.Path != "intent-templates.yaml" {
		t.Errorf("expected default templates path, got %s", cfg.Templates.Path)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("log: [unclosed"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Metrics.Listen = ":9102"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Log.Level != "warn" || loaded.Metrics.Listen != ":9102" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestClassifierRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quillops.yaml")
	content := `
classifier:
  - intent: onboard_client
    keywords: [onboard, client]
  - intent: health_check
    keywords: [ping]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Classifier) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(cfg.Classifier))
	}
	if cfg.Classifier[0].Intent != "onboard_client" || len(cfg.Classifier[0].Keywords) != 2 {
		t.Errorf("unexpected rule: %+v", cfg.Classifier[0])
	}
}
