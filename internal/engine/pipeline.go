package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/miradorstack/shoptrace-synth/internal/analyzer"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/quality"
	"github.com/miradorstack/shoptrace-synth/internal/segment"
	"github.com/miradorstack/shoptrace-synth/internal/selector"
)

// ErrInvalidSession is returned when a session violates ordering or payload invariants.
var ErrInvalidSession = errors.New("invalid session")

// exampleNamespace seeds the name-based UUIDs assigned to examples.
var exampleNamespace = uuid.MustParse("6f1c2a5e-8d3b-4c8e-9a51-3b7f0e2d4c19")

// Synthesizer turns one session into filtered training examples. It holds only
// read-only collaborators and may be shared by concurrent session workers.
type Synthesizer struct {
	logger    *slog.Logger
	resolver  *selector.Resolver
	analyzer  *analyzer.Analyzer
	scorer    *quality.Scorer
	segmenter *segment.Segmenter
	threshold float64
}

// NewSynthesizer wires the pipeline stages together.
func NewSynthesizer(
	logger *slog.Logger,
	resolver *selector.Resolver,
	analyzer *analyzer.Analyzer,
	scorer *quality.Scorer,
	segmenter *segment.Segmenter,
	threshold float64,
) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		logger:    logger,
		resolver:  resolver,
		analyzer:  analyzer,
		scorer:    scorer,
		segmenter: segmenter,
		threshold: threshold,
	}
}

// Threshold returns the minimum aggregate quality for emission.
func (s *Synthesizer) Threshold() float64 {
	return s.threshold
}

// Result is the outcome of synthesizing one session. Zero examples is a valid result.
type Result struct {
	Examples     []models.TrainingExample
	Considered   int
	Emitted      int
	Filtered     int
	Partial      bool
	Segmentation models.Segmentation
}

type analysis struct {
	rec      models.InteractionRecord
	resolved models.ResolvedSelector
	page     models.PageContext
	intent   models.UserIntent
	signals  models.BusinessSignals
	action   models.ActionDescriptor
	metrics  models.QualityMetrics
}

// Synthesize segments the session and analyses every interaction concurrently, then
// emits per-interaction examples (by index) followed by per-sequence examples (by
// sequence index). Output is fully determined by the session and configuration.
//
// Cancellation stops both walks after the current interaction; whatever was
// finished is still returned with Partial set.
func (s *Synthesizer) Synthesize(ctx context.Context, session models.Session) (Result, error) {
	if err := session.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrInvalidSession, session.ID, err)
	}

	segCh := make(chan models.Segmentation, 1)
	go func() {
		segCh <- s.segmenter.Segment(ctx, session.Interactions)
	}()

	analysed := make([]analysis, 0, len(session.Interactions))
	acc := s.analyzer.NewIntentAccumulator()
	for _, rec := range session.Interactions {
		if ctx.Err() != nil {
			break
		}
		acc.Observe(rec)
		analysed = append(analysed, s.analyse(rec, acc.Intent()))
	}
	seg := <-segCh

	res := Result{
		Partial:      seg.Partial || len(analysed) < len(session.Interactions),
		Segmentation: seg,
		Examples:     []models.TrainingExample{},
	}
	for _, a := range analysed {
		s.offer(&res, s.interactionExample(session.ID, a))
	}
	for _, seq := range seg.Sequences {
		if seq.End >= len(analysed) {
			continue
		}
		s.offer(&res, s.sequenceExample(session.ID, seq, analysed[seq.Start:seq.End+1]))
	}

	s.logger.Debug("session synthesized",
		slog.String("session_id", session.ID),
		slog.Int("interactions", len(session.Interactions)),
		slog.Int("sequences", len(seg.Sequences)),
		slog.Int("considered", res.Considered),
		slog.Int("emitted", res.Emitted),
		slog.Bool("partial", res.Partial))
	return res, nil
}

func (s *Synthesizer) offer(res *Result, ex models.TrainingExample) {
	res.Considered++
	if !quality.MeetsTrainingBar(ex.Context.Metrics, s.threshold) {
		res.Filtered++
		return
	}
	res.Emitted++
	res.Examples = append(res.Examples, ex)
}

func (s *Synthesizer) analyse(rec models.InteractionRecord, intent models.UserIntent) analysis {
	resolved := s.resolver.ResolveFor(rec)
	page := s.analyzer.PageFor(rec)
	return analysis{
		rec:      rec,
		resolved: resolved,
		page:     page,
		intent:   intent,
		signals:  s.scorer.Signals(rec),
		action:   selector.ActionFor(rec, resolved),
		metrics:  s.scorer.ScoreInteraction(rec, page, resolved),
	}
}

func (s *Synthesizer) interactionExample(sessionID string, a analysis) models.TrainingExample {
	index := a.rec.Index
	return models.TrainingExample{
		Prompt:     interactionPrompt(a),
		Completion: interactionCompletion(a),
		Quality:    a.metrics.Aggregate,
		Context: models.ExampleContext{
			ExampleID:        ExampleID(sessionID, models.ExampleInteraction, index),
			SessionID:        sessionID,
			Kind:             models.ExampleInteraction,
			SchemaVersion:    models.ExampleSchemaVersion,
			InteractionIndex: &index,
			Journey:          models.JourneyFrom(a.intent),
			Page:             a.page,
			Business:         a.signals,
			SelectorsUsed:    a.resolved.Locators(),
			Action:           a.action,
			Metrics:          a.metrics,
		},
	}
}

func (s *Synthesizer) sequenceExample(sessionID string, seq models.ShoppingSequence, members []analysis) models.TrainingExample {
	memberMetrics := make([]models.QualityMetrics, len(members))
	for i, m := range members {
		memberMetrics[i] = m.metrics
	}
	metrics := s.scorer.ScoreSequence(seq, memberMetrics)
	terminal := members[len(members)-1]
	snapshot := make(map[string]string, len(seq.Configuration))
	for k, v := range seq.Configuration {
		snapshot[k] = v
	}
	return models.TrainingExample{
		Prompt:     sequencePrompt(seq, members, s.analyzer.SessionPage(seq.Interactions)),
		Completion: sequenceCompletion(seq, terminal),
		Quality:    metrics.Aggregate,
		Context: models.ExampleContext{
			ExampleID:     ExampleID(sessionID, models.ExampleSequence, seq.Index),
			SessionID:     sessionID,
			Kind:          models.ExampleSequence,
			SchemaVersion: models.ExampleSchemaVersion,
			Journey:       models.JourneyFrom(terminal.intent),
			Page:          terminal.page,
			Business:      s.scorer.SequenceSignals(seq.Interactions),
			SelectorsUsed: terminal.resolved.Locators(),
			Action:        terminal.action,
			Sequence: &models.SequenceContext{
				Index:         seq.Index,
				FlowType:      seq.FlowType,
				Status:        seq.Status,
				Start:         seq.Start,
				End:           seq.End,
				Length:        seq.Len(),
				Configuration: snapshot,
			},
			Metrics: metrics,
		},
	}
}

// ExampleID derives a stable identifier from the session, example kind and index.
func ExampleID(sessionID string, kind models.ExampleKind, index int) string {
	return uuid.NewSHA1(exampleNamespace, []byte(fmt.Sprintf("%s/%s/%d", sessionID, kind, index))).String()
}
