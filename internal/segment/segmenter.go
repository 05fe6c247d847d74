// Package segment partitions a session's ordered interactions into shopping
// sequences using the flow trigger tables of a pattern pack.
package segment

import (
	"context"
	"log/slog"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
)

// DefaultMaxLookahead is the number of consecutive non-trigger interactions after
// which an open sequence is closed incomplete.
const DefaultMaxLookahead = 15

// Options configures a Segmenter.
type Options struct {
	MaxLookahead int
}

// Segmenter is immutable after construction; each Segment call keeps its own state.
type Segmenter struct {
	tables    *patterns.Tables
	lookahead int
	logger    *slog.Logger
}

// New constructs a Segmenter.
func New(logger *slog.Logger, tables *patterns.Tables, opts Options) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLookahead < 1 {
		opts.MaxLookahead = DefaultMaxLookahead
	}
	return &Segmenter{tables: tables, lookahead: opts.MaxLookahead, logger: logger}
}

// Segment walks records in order with an IDLE/OPEN state machine.
//
// While IDLE a start trigger opens a sequence; anything else is unsequenced. While
// OPEN an end trigger completes the sequence, and a product-page or configuration
// update continues it. Other interactions are held as intermediate steps and are
// only kept when a later trigger arrives. Once the look-ahead window fills up (or
// the stream ends) the sequence closes incomplete at its last trigger and the held
// interactions are walked again from IDLE.
//
// The context is checked before each interaction. On cancellation the open
// sequence is dropped, Partial is set and Walked marks the fully partitioned prefix.
func (s *Segmenter) Segment(ctx context.Context, records []models.InteractionRecord) models.Segmentation {
	w := walk{s: s, records: records}
	i := 0
	for {
		if i >= len(records) {
			if w.open == nil {
				break
			}
			// end of stream behaves like a timeout
			i = w.closeIncomplete("end of stream")
			continue
		}
		if err := ctx.Err(); err != nil {
			w.out.Partial = true
			break
		}
		i = w.step(i)
	}
	switch {
	case w.open != nil:
		w.out.Walked = w.open.start
	default:
		w.out.Walked = i
	}
	w.open = nil
	if w.out.Sequences == nil {
		w.out.Sequences = []models.ShoppingSequence{}
	}
	if w.out.Unsequenced == nil {
		w.out.Unsequenced = []int{}
	}
	return w.out
}

type walk struct {
	s       *Segmenter
	records []models.InteractionRecord
	open    *builder
	out     models.Segmentation
}

// step processes records[i] and returns the next index to visit.
func (w *walk) step(i int) int {
	rec := w.records[i]
	if w.open == nil {
		if family, ok := w.s.startFamily(rec); ok {
			w.open = newBuilder(family, i)
		} else {
			w.out.Unsequenced = append(w.out.Unsequenced, i)
		}
		return i + 1
	}

	if family, ok := w.s.endFamily(rec); ok {
		w.open.trigger(models.SequenceStep{Index: i, Role: models.StepEnd})
		w.open.endFamily = family
		w.emit(w.open.build(w.records, models.SequenceComplete))
		w.open = nil
		return i + 1
	}
	if field, value, ok := w.s.configUpdate(rec); ok {
		w.open.trigger(models.SequenceStep{Index: i, Role: models.StepContinue, Field: field, Value: value})
		w.open.config[field] = value
		return i + 1
	}
	if w.s.onProductPage(rec) {
		w.open.trigger(models.SequenceStep{Index: i, Role: models.StepContinue})
		return i + 1
	}

	w.open.pending = append(w.open.pending, i)
	if len(w.open.pending) >= w.s.lookahead {
		return w.closeIncomplete("look-ahead exhausted")
	}
	return i + 1
}

// closeIncomplete closes the open sequence at its last trigger and returns the
// first held index so the caller re-walks it from IDLE.
func (w *walk) closeIncomplete(reason string) int {
	b := w.open
	w.open = nil
	next := b.last + 1
	seq := b.build(w.records, models.SequenceIncomplete)
	w.s.logger.Debug("shopping sequence closed incomplete",
		slog.String("reason", reason),
		slog.String("flow_type", seq.FlowType),
		slog.Int("start", seq.Start),
		slog.Int("end", seq.End),
		slog.Int("held", len(b.pending)))
	w.emit(seq)
	return next
}

func (w *walk) emit(seq models.ShoppingSequence) {
	seq.Index = len(w.out.Sequences)
	w.out.Sequences = append(w.out.Sequences, seq)
}

type builder struct {
	startFamily string
	endFamily   string
	start       int
	last        int
	steps       []models.SequenceStep
	pending     []int
	config      map[string]string
}

func newBuilder(family string, index int) *builder {
	return &builder{
		startFamily: family,
		start:       index,
		last:        index,
		steps:       []models.SequenceStep{{Index: index, Role: models.StepStart}},
		config:      make(map[string]string),
	}
}

// trigger commits held interactions as intermediate steps, then appends step.
func (b *builder) trigger(step models.SequenceStep) {
	for _, idx := range b.pending {
		b.steps = append(b.steps, models.SequenceStep{Index: idx, Role: models.StepIntermediate})
	}
	b.pending = b.pending[:0]
	b.steps = append(b.steps, step)
	b.last = step.Index
}

func (b *builder) build(records []models.InteractionRecord, status models.SequenceStatus) models.ShoppingSequence {
	seq := models.ShoppingSequence{
		Start:         b.start,
		End:           b.last,
		Interactions:  records[b.start : b.last+1 : b.last+1],
		Steps:         b.steps,
		StartFamily:   b.startFamily,
		Status:        status,
		Configuration: b.config,
	}
	if status == models.SequenceComplete {
		seq.EndFamily = b.endFamily
		seq.FlowType = b.startFamily + "-to-" + b.endFamily
	} else {
		seq.FlowType = b.startFamily + "-incomplete"
	}
	return seq
}
