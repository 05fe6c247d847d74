package engine

import (
	"log/slog"

	"github.com/miradorstack/shoptrace-synth/internal/analyzer"
	"github.com/miradorstack/shoptrace-synth/internal/config"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
	"github.com/miradorstack/shoptrace-synth/internal/quality"
	"github.com/miradorstack/shoptrace-synth/internal/segment"
	"github.com/miradorstack/shoptrace-synth/internal/selector"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// New builds a Synthesizer from compiled pattern tables and synthesis settings.
// Every configuration defect surfaces here, before any session is processed.
func New(logger *slog.Logger, tables *patterns.Tables, cfg config.SynthesisConfig) (*Synthesizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tables == nil {
		return nil, utils.ConfigError("patterns", "pattern tables are required")
	}

	priority, err := config.ParseLocatorPriority(cfg.LocatorPriority)
	if err != nil {
		return nil, err
	}
	scorer, err := quality.NewScorer(tables, quality.Options{
		Weights:           cfg.Weights.Quality(),
		DomainMultipliers: cfg.DomainMultipliers,
	})
	if err != nil {
		return nil, err
	}
	if cfg.MinQuality < 0 || cfg.MinQuality > 100 {
		return nil, utils.ConfigError("synthesis.minQuality", "must be within [0,100], got %v", cfg.MinQuality)
	}

	resolver := selector.NewResolver(logger, selector.Options{MaxFallbacks: cfg.MaxFallbacks, Priority: priority})
	an := analyzer.New(logger, tables, analyzer.Options{ConfidenceCeiling: cfg.IntentConfidenceCeiling})
	seg := segment.New(logger, tables, segment.Options{MaxLookahead: cfg.MaxLookahead})

	logger.Info("synthesizer configured",
		slog.String("patterns_version", tables.Version),
		slog.String("weights_version", scorer.Weights().Version),
		slog.Float64("min_quality", cfg.MinQuality),
		slog.Int("max_lookahead", cfg.MaxLookahead),
		slog.Int("max_fallbacks", cfg.MaxFallbacks))
	return NewSynthesizer(logger, resolver, an, scorer, seg, cfg.MinQuality), nil
}
