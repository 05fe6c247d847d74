package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/quality"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Synthesis.MaxLookahead != 15 || cfg.Synthesis.MaxFallbacks != 3 || cfg.Synthesis.MinQuality != 60 {
		t.Fatalf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
synthesis:
  maxLookahead: 10
  minQuality: 70
  domainMultipliers:
    example.com: 1.5
runner:
  workers: 2
  sessionTimeout: 5s
`)
	t.Setenv("SHOPTRACE_MAX_FALLBACKS", "1")
	t.Setenv("SHOPTRACE_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Synthesis.MaxLookahead != 10 || cfg.Synthesis.MinQuality != 70 {
		t.Fatalf("file values not applied: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.MaxFallbacks != 1 || !cfg.Logging.JSON {
		t.Fatalf("env overrides not applied")
	}
	if cfg.Synthesis.Weights.Version != "v1" {
		t.Fatalf("default weights should survive a partial file, got %+v", cfg.Synthesis.Weights)
	}
	if cfg.Runner.Workers != 2 || cfg.Runner.SessionTimeout != 5*time.Second {
		t.Fatalf("runner values not applied: %+v", cfg.Runner)
	}
	if cfg.Synthesis.DomainMultipliers["example.com"] != 1.5 {
		t.Fatalf("domain multipliers not applied")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Synthesis.Weights.Selector = 0.5
	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDefaultWeightsMatchScorer(t *testing.T) {
	if got := DefaultWeights().Quality(); got != quality.DefaultWeights() {
		t.Fatalf("config defaults drifted from the scorer: %+v", got)
	}
}

func TestValidateRejectsNegativeWeight(t *testing.T) {
	cfg := Default()
	cfg.Synthesis.Weights.Selector = 0.5
	cfg.Synthesis.Weights.Site = -0.1
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateRejectsLocatorPriority(t *testing.T) {
	for name, priority := range map[string][]string{
		"unknown":   {"id", "shadow"},
		"duplicate": {"id", "css", "ID"},
		"empty":     nil,
	} {
		cfg := Default()
		cfg.Synthesis.LocatorPriority = priority
		if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestParseLocatorPriorityNormalises(t *testing.T) {
	kinds, err := ParseLocatorPriority([]string{" XPath", "id"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != models.LocatorXPath || kinds[1] != models.LocatorID {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}

func TestValidateBounds(t *testing.T) {
	mutators := map[string]func(*Config){
		"lookahead":  func(c *Config) { c.Synthesis.MaxLookahead = 0 },
		"fallbacks":  func(c *Config) { c.Synthesis.MaxFallbacks = -1 },
		"quality":    func(c *Config) { c.Synthesis.MinQuality = 101 },
		"ceiling":    func(c *Config) { c.Synthesis.IntentConfidenceCeiling = 0 },
		"multiplier": func(c *Config) { c.Synthesis.DomainMultipliers = map[string]float64{"a.com": -1} },
		"workers":    func(c *Config) { c.Runner.Workers = 0 },
		"burst":      func(c *Config) { c.Runner.EmitRate = 10; c.Runner.EmitBurst = 0 },
		"cache":      func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" },
	}
	for name, mutate := range mutators {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("SHOPTRACE_MIN_QUALITY=42\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SHOPTRACE_ENV_FILE", envPath)
	// godotenv never overrides variables that are already set; make sure this one is unset
	// and cleaned up afterwards.
	t.Setenv("SHOPTRACE_MIN_QUALITY", "")
	os.Unsetenv("SHOPTRACE_MIN_QUALITY")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Synthesis.MinQuality != 42 {
		t.Fatalf("expected env file value, got %v", cfg.Synthesis.MinQuality)
	}
}
