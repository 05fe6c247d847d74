package patterns

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// Store abstracts persistence for mined flow patterns.
type Store interface {
	StoreFlowPatterns(ctx context.Context, batchID string, patterns []models.FlowPattern) error
}

// Miner aggregates segmented sessions into frequency-based flow patterns. New
// trigger families are usually found by reading its output.
type Miner struct {
	store     Store
	logger    *slog.Logger
	topFields int
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger, topFields: 3}
}

// Mine returns one pattern per flow type ordered by prevalence, then flow type.
func (m *Miner) Mine(ctx context.Context, batchID string, sessions []models.SessionFlows) ([]models.FlowPattern, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	stats := make(map[string]*flowAggregate)
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen := make(map[string]struct{})
		for _, seq := range session.Sequences {
			flowType := normalizeFlowType(seq.FlowType)
			agg := ensureAggregate(stats, flowType)
			agg.sequences++
			agg.length += seq.Len()
			if seq.Complete() {
				agg.complete++
			}
			for _, field := range seq.ConfigurationFields() {
				agg.fieldCounts[field]++
			}
			if session.EndedAt.After(agg.lastSeen) {
				agg.lastSeen = session.EndedAt
			}
			if _, ok := seen[flowType]; !ok {
				seen[flowType] = struct{}{}
				agg.sessions++
			}
		}
	}

	patterns := make([]models.FlowPattern, 0, len(stats))
	for flowType, agg := range stats {
		patterns = append(patterns, models.FlowPattern{
			FlowType:      flowType,
			Sessions:      agg.sessions,
			Sequences:     agg.sequences,
			Prevalence:    float64(agg.sessions) / float64(len(sessions)),
			CompleteRatio: float64(agg.complete) / float64(agg.sequences),
			MeanLength:    float64(agg.length) / float64(agg.sequences),
			TopFields:     agg.topFields(m.topFields),
			LastSeen:      agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].FlowType < patterns[j].FlowType
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StoreFlowPatterns(ctx, batchID, patterns); err != nil {
			m.logger.Warn("flow pattern store failed", slog.String("batch", batchID), slog.Any("error", err))
		}
	}

	return patterns, nil
}

type flowAggregate struct {
	sessions    int
	sequences   int
	complete    int
	length      int
	lastSeen    time.Time
	fieldCounts map[string]int
}

// normalizeFlowType files sequences without a flow type under "unknown".
func normalizeFlowType(flowType string) string {
	if flowType = strings.TrimSpace(flowType); flowType == "" {
		return "unknown"
	}
	return flowType
}

func ensureAggregate(m map[string]*flowAggregate, flowType string) *flowAggregate {
	agg, ok := m[flowType]
	if !ok {
		agg = &flowAggregate{fieldCounts: make(map[string]int)}
		m[flowType] = agg
	}
	return agg
}

func (agg *flowAggregate) topFields(limit int) []string {
	fields := make([]string, 0, len(agg.fieldCounts))
	for field := range agg.fieldCounts {
		fields = append(fields, field)
	}
	sort.Slice(fields, func(i, j int) bool {
		ci, cj := agg.fieldCounts[fields[i]], agg.fieldCounts[fields[j]]
		if ci != cj {
			return ci > cj
		}
		return fields[i] < fields[j]
	})
	if len(fields) > limit {
		fields = fields[:limit]
	}
	return fields
}
