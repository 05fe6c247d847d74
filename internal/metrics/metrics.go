package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

const (
	// OutcomeSuccess labels sessions synthesized in full, including those with zero examples.
	OutcomeSuccess = "success"
	// OutcomePartial labels sessions cut short by their time budget.
	OutcomePartial = "partial"
	// OutcomeCached labels sessions served from the result cache.
	OutcomeCached = "cached"
	// OutcomeError labels sessions that could not be processed.
	OutcomeError = "error"
)

const (
	ResultEmitted  = "emitted"
	ResultFiltered = "filtered"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptrace_synth",
			Name:      "sessions_total",
			Help:      "Total number of sessions processed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	sessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shoptrace_synth",
			Name:      "session_seconds",
			Help:      "Per-session synthesis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	examplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptrace_synth",
			Name:      "examples_total",
			Help:      "Candidate training examples, partitioned by whether they passed the quality bar.",
		},
		[]string{"result"},
	)

	sequencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptrace_synth",
			Name:      "sequences_total",
			Help:      "Shopping sequences segmented, partitioned by status and flow type.",
		},
		[]string{"status", "flow_type"},
	)

	exampleQuality = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shoptrace_synth",
			Name:      "example_quality",
			Help:      "Aggregate quality score of emitted examples.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptrace_synth",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches shoptrace-synth collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sessionsTotal,
		sessionDurationSeconds,
		examplesTotal,
		sequencesTotal,
		exampleQuality,
		cacheLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSession records a session duration and outcome label.
func ObserveSession(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomePartial, OutcomeCached, OutcomeError:
	default:
		outcome = OutcomeSuccess
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	sessionDurationSeconds.Observe(duration.Seconds())
}

// ObserveExamples records emission counts and the quality of emitted examples.
func ObserveExamples(emitted []models.TrainingExample, filtered int) {
	examplesTotal.WithLabelValues(ResultEmitted).Add(float64(len(emitted)))
	if filtered > 0 {
		examplesTotal.WithLabelValues(ResultFiltered).Add(float64(filtered))
	}
	for _, ex := range emitted {
		exampleQuality.Observe(ex.Quality)
	}
}

// ObserveSequences counts segmented sequences.
func ObserveSequences(sequences []models.ShoppingSequence) {
	for _, seq := range sequences {
		sequencesTotal.WithLabelValues(string(seq.Status), seq.FlowType).Inc()
	}
}

// ObserveCacheLookup counts a result cache lookup.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
