package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/quality"
	"github.com/miradorstack/shoptrace-synth/internal/segment"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// ErrConfiguration is returned (wrapped) by Validate for any setup defect.
var ErrConfiguration = utils.ErrConfiguration

// Config captures every setting required to run the synthesis engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Patterns  PatternsConfig  `yaml:"patterns"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Runner    RunnerConfig    `yaml:"runner"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PatternsConfig points at the pattern pack. An empty path selects the embedded pack.
type PatternsConfig struct {
	Path  string          `yaml:"path"`
	Store FlowStoreConfig `yaml:"store"`
}

// FlowStoreConfig points mined flow patterns at a Weaviate instance. An empty
// endpoint disables remote storage.
type FlowStoreConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Class    string        `yaml:"class"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SynthesisConfig holds the tunables shared by every pipeline stage.
type SynthesisConfig struct {
	MaxLookahead            int                `yaml:"maxLookahead"`
	MaxFallbacks            int                `yaml:"maxFallbacks"`
	MinQuality              float64            `yaml:"minQuality"`
	LocatorPriority         []string           `yaml:"locatorPriority"`
	Weights                 WeightsConfig      `yaml:"weights"`
	DomainMultipliers       map[string]float64 `yaml:"domainMultipliers"`
	IntentConfidenceCeiling float64            `yaml:"intentConfidenceCeiling"`
}

// WeightsConfig is a versioned set of quality dimension weights.
type WeightsConfig struct {
	Version       string  `yaml:"version"`
	Selector      float64 `yaml:"selector"`
	Spatial       float64 `yaml:"spatial"`
	DOMComplexity float64 `yaml:"domComplexity"`
	Business      float64 `yaml:"business"`
	Site          float64 `yaml:"site"`
}

// Quality converts the configured weights for the scorer.
func (w WeightsConfig) Quality() quality.Weights {
	return quality.Weights{
		Version:       w.Version,
		Selector:      w.Selector,
		Spatial:       w.Spatial,
		DOMComplexity: w.DOMComplexity,
		Business:      w.Business,
		Site:          w.Site,
	}
}

// RunnerConfig controls batch fan-out across sessions.
type RunnerConfig struct {
	Workers        int           `yaml:"workers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	// EmitRate is the maximum examples per second handed downstream; 0 disables throttling.
	EmitRate  float64 `yaml:"emitRate"`
	EmitBurst int     `yaml:"emitBurst"`
}

// CacheConfig controls the Redis/Valkey result cache.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	ResultTTL    time.Duration `yaml:"resultTTL"`
}

// Load initialises Config from defaults, an optional .env file, a YAML file and
// SHOPTRACE_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv("SHOPTRACE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Patterns: PatternsConfig{
			Store: FlowStoreConfig{Class: "FlowPattern", Timeout: 5 * time.Second},
		},
		Synthesis: SynthesisConfig{
			MaxLookahead:            segment.DefaultMaxLookahead,
			MaxFallbacks:            3,
			MinQuality:              quality.DefaultThreshold,
			LocatorPriority:         defaultLocatorPriority(),
			Weights:                 DefaultWeights(),
			IntentConfidenceCeiling: 10,
		},
		Runner: RunnerConfig{
			Workers:        runtime.NumCPU(),
			SessionTimeout: 30 * time.Second,
			EmitBurst:      64,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			KeyPrefix:    "shoptrace:synth:",
			ResultTTL:    24 * time.Hour,
		},
	}
}

// DefaultWeights is quality.DefaultWeights in configuration form.
func DefaultWeights() WeightsConfig {
	w := quality.DefaultWeights()
	return WeightsConfig{
		Version:       w.Version,
		Selector:      w.Selector,
		Spatial:       w.Spatial,
		DOMComplexity: w.DOMComplexity,
		Business:      w.Business,
		Site:          w.Site,
	}
}

func defaultLocatorPriority() []string {
	kinds := models.KnownLocatorKinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Validate reports the first setup defect found. Every error wraps ErrConfiguration.
func (c *Config) Validate() error {
	s := c.Synthesis
	if s.MaxLookahead < 1 {
		return utils.ConfigError("synthesis.maxLookahead", "must be at least 1, got %d", s.MaxLookahead)
	}
	if s.MaxFallbacks < 0 {
		return utils.ConfigError("synthesis.maxFallbacks", "must be non-negative, got %d", s.MaxFallbacks)
	}
	if math.IsNaN(s.MinQuality) || s.MinQuality < 0 || s.MinQuality > 100 {
		return utils.ConfigError("synthesis.minQuality", "must be within [0,100], got %v", s.MinQuality)
	}
	if math.IsNaN(s.IntentConfidenceCeiling) || s.IntentConfidenceCeiling <= 0 {
		return utils.ConfigError("synthesis.intentConfidenceCeiling", "must be positive, got %v", s.IntentConfidenceCeiling)
	}
	if _, err := ParseLocatorPriority(s.LocatorPriority); err != nil {
		return err
	}
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	for domain, mult := range s.DomainMultipliers {
		if strings.TrimSpace(domain) == "" {
			return utils.ConfigError("synthesis.domainMultipliers", "empty domain key")
		}
		if math.IsNaN(mult) || mult < 0 {
			return utils.ConfigError("synthesis.domainMultipliers", "multiplier for %s must be non-negative, got %v", domain, mult)
		}
	}

	r := c.Runner
	if r.Workers < 1 {
		return utils.ConfigError("runner.workers", "must be at least 1, got %d", r.Workers)
	}
	if r.SessionTimeout < 0 {
		return utils.ConfigError("runner.sessionTimeout", "must be non-negative, got %s", r.SessionTimeout)
	}
	if r.EmitRate < 0 {
		return utils.ConfigError("runner.emitRate", "must be non-negative, got %v", r.EmitRate)
	}
	if r.EmitRate > 0 && r.EmitBurst < 1 {
		return utils.ConfigError("runner.emitBurst", "must be at least 1 when emitRate is set, got %d", r.EmitBurst)
	}

	if st := c.Patterns.Store; st.Endpoint != "" {
		if strings.TrimSpace(st.Class) == "" {
			return utils.ConfigError("patterns.store.class", "required when an endpoint is set")
		}
		if st.Timeout < 0 {
			return utils.ConfigError("patterns.store.timeout", "must be non-negative, got %s", st.Timeout)
		}
	}

	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Addr) == "" {
		return utils.ConfigError("cache.addr", "required when cache is enabled")
	}
	return nil
}

// Validate applies the scorer's weight rules.
func (w WeightsConfig) Validate() error {
	return w.Quality().Validate()
}

// ParseLocatorPriority converts configured kind names into LocatorKinds, rejecting
// unknown or repeated kinds. Kinds left out rank after the listed ones.
func ParseLocatorPriority(names []string) ([]models.LocatorKind, error) {
	if len(names) == 0 {
		return nil, utils.ConfigError("synthesis.locatorPriority", "at least one locator kind is required")
	}
	known := make(map[models.LocatorKind]struct{})
	for _, k := range models.KnownLocatorKinds() {
		known[k] = struct{}{}
	}
	seen := make(map[models.LocatorKind]struct{}, len(names))
	out := make([]models.LocatorKind, 0, len(names))
	for _, name := range names {
		kind := models.LocatorKind(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := known[kind]; !ok {
			return nil, utils.ConfigError("synthesis.locatorPriority", "unknown locator kind %q", name)
		}
		if _, dup := seen[kind]; dup {
			return nil, utils.ConfigError("synthesis.locatorPriority", "duplicate locator kind %q", name)
		}
		seen[kind] = struct{}{}
		out = append(out, kind)
	}
	return out, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("SHOPTRACE_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPTRACE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SHOPTRACE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SHOPTRACE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHOPTRACE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SHOPTRACE_PATTERNS_PATH"); v != "" {
		cfg.Patterns.Path = v
	}
	if v := os.Getenv("SHOPTRACE_FLOW_STORE_ENDPOINT"); v != "" {
		cfg.Patterns.Store.Endpoint = v
	}
	if v := os.Getenv("SHOPTRACE_FLOW_STORE_API_KEY"); v != "" {
		cfg.Patterns.Store.APIKey = v
	}
	if v := os.Getenv("SHOPTRACE_MAX_LOOKAHEAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Synthesis.MaxLookahead = n
		}
	}
	if v := os.Getenv("SHOPTRACE_MAX_FALLBACKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Synthesis.MaxFallbacks = n
		}
	}
	if v := os.Getenv("SHOPTRACE_MIN_QUALITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Synthesis.MinQuality = f
		}
	}
	if v := os.Getenv("SHOPTRACE_LOCATOR_PRIORITY"); v != "" {
		cfg.Synthesis.LocatorPriority = strings.Split(v, ",")
	}
	if v := os.Getenv("SHOPTRACE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.Workers = n
		}
	}
	if v := os.Getenv("SHOPTRACE_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runner.SessionTimeout = d
		}
	}
	if v := os.Getenv("SHOPTRACE_EMIT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Runner.EmitRate = f
		}
	}
	if v := os.Getenv("SHOPTRACE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SHOPTRACE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SHOPTRACE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SHOPTRACE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SHOPTRACE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SHOPTRACE_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SHOPTRACE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultTTL = d
		}
	}
}
