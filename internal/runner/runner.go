// Package runner fans sessions out across a bounded worker pool, applies the
// per-session time budget and result cache, and hands examples to a sink in input
// order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/miradorstack/shoptrace-synth/internal/cache"
	"github.com/miradorstack/shoptrace-synth/internal/config"
	"github.com/miradorstack/shoptrace-synth/internal/engine"
	"github.com/miradorstack/shoptrace-synth/internal/ingest"
	"github.com/miradorstack/shoptrace-synth/internal/metrics"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// Error classes attached to failed sessions.
const (
	ClassMalformed = "malformed_session"
	ClassInvalid   = "invalid_session"
	ClassPanic     = "panic"
	ClassInternal  = "internal"
)

// Source yields sessions until io.EOF. Errors satisfying ingest.IsLineError fail a
// single session; any other error stops the run.
type Source interface {
	Next() (models.Session, error)
}

// Synthesizer turns one session into examples; *engine.Synthesizer implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, session models.Session) (engine.Result, error)
}

// Sink receives each session's emitted examples.
type Sink interface {
	Write(examples []models.TrainingExample) error
}

// Options configures a Runner.
type Options struct {
	Workers        int
	SessionTimeout time.Duration
	// EmitRate caps emitted examples per second; zero disables throttling.
	EmitRate  float64
	EmitBurst int
	// Fingerprint identifies the synthesis configuration in cache keys.
	Fingerprint string
}

// OptionsFrom maps the runner configuration onto Options.
func OptionsFrom(cfg config.RunnerConfig, fingerprint string) Options {
	return Options{
		Workers:        cfg.Workers,
		SessionTimeout: cfg.SessionTimeout,
		EmitRate:       cfg.EmitRate,
		EmitBurst:      cfg.EmitBurst,
		Fingerprint:    fingerprint,
	}
}

// SessionResult is the per-session report. A session with zero qualifying examples
// is a success; Err is set only when the session could not be processed.
type SessionResult struct {
	SessionID  string
	Line       int
	Examples   []models.TrainingExample
	Considered int
	Emitted    int
	Filtered   int
	Partial    bool
	Cached     bool
	Duration   time.Duration
	Sequences  []models.ShoppingSequence
	EndedAt    time.Time
	Err        error
	ErrClass   string
}

// Failed reports whether the session could not be processed.
func (r SessionResult) Failed() bool {
	return r.Err != nil
}

// Report summarises a batch run.
type Report struct {
	Sessions   int
	Succeeded  int
	Failed     int
	Partial    int
	Cached     int
	Emitted    int
	Filtered   int
	SessionP95 time.Duration
	Results    []SessionResult
}

// Flows returns the segmentation of every successfully processed session.
func (r Report) Flows() []models.SessionFlows {
	flows := make([]models.SessionFlows, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Failed() {
			continue
		}
		flows = append(flows, models.SessionFlows{SessionID: res.SessionID, EndedAt: res.EndedAt, Sequences: res.Sequences})
	}
	return flows
}

// Runner is safe for concurrent use; the synthesizer and cache are shared by workers.
type Runner struct {
	logger  *slog.Logger
	synth   Synthesizer
	results *cache.Results
	limiter *rate.Limiter
	opts    Options
}

// New constructs a Runner. results may be nil to disable caching.
func New(logger *slog.Logger, synth Synthesizer, results *cache.Results, opts Options) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if synth == nil {
		return nil, errors.New("synthesizer cannot be nil")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if results == nil {
		results = cache.NewResults(nil, "", 0)
	}
	r := &Runner{logger: logger, synth: synth, results: results, opts: opts}
	if opts.EmitRate > 0 {
		burst := opts.EmitBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.EmitRate), burst)
	}
	return r, nil
}

type indexed struct {
	seq int
	res SessionResult
}

// Run drains src through the worker pool and writes every session's examples to
// sink in source order. It stops reading when ctx is cancelled; sessions already
// started finish as partial results and are still written.
func (r *Runner) Run(ctx context.Context, src Source, sink Sink) (Report, error) {
	sem := make(chan struct{}, r.opts.Workers)
	out := make(chan indexed, r.opts.Workers)
	var (
		wg      sync.WaitGroup
		readErr error
	)

	go func() {
		defer func() {
			wg.Wait()
			close(out)
		}()
		for seq := 0; ; seq++ {
			if err := ctx.Err(); err != nil {
				readErr = err
				return
			}
			session, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil && !ingest.IsLineError(err) {
				readErr = err
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				readErr = ctx.Err()
				return
			}
			wg.Add(1)
			go func(seq int, session models.Session, err error) {
				defer wg.Done()
				if err != nil {
					out <- indexed{seq: seq, res: malformed(err)}
					return
				}
				out <- indexed{seq: seq, res: r.Process(ctx, session)}
			}(seq, session, err)
		}
	}()

	var (
		report    Report
		writeErr  error
		durations = utils.NewLatencyTracker(1024)
	)
	pending := make(map[int]SessionResult)
	next := 0
	for item := range out {
		pending[item.seq] = item.res
		for {
			res, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			// slots free up in emission order, bounding results held for reordering
			<-sem
			if err := r.emit(ctx, sink, res, writeErr == nil); err != nil {
				writeErr = err
			}
			report.add(res)
			durations.Observe(res.Duration)
		}
	}
	report.SessionP95 = durations.Percentile(95)

	r.logger.Info("batch finished",
		slog.Int("sessions", report.Sessions),
		slog.Int("failed", report.Failed),
		slog.Int("partial", report.Partial),
		slog.Int("cached", report.Cached),
		slog.Int("emitted", report.Emitted),
		slog.Int("filtered", report.Filtered),
		slog.Duration("session_p95", report.SessionP95))

	if writeErr != nil {
		return report, fmt.Errorf("write examples: %w", writeErr)
	}
	if readErr != nil {
		return report, fmt.Errorf("read sessions: %w", readErr)
	}
	return report, nil
}

func (r *Runner) emit(ctx context.Context, sink Sink, res SessionResult, write bool) error {
	if !write || sink == nil || len(res.Examples) == 0 {
		return nil
	}
	if r.limiter != nil {
		for range res.Examples {
			// a cancelled run drains without throttling
			if err := r.limiter.Wait(ctx); err != nil {
				break
			}
		}
	}
	return sink.Write(res.Examples)
}

func (rep *Report) add(res SessionResult) {
	rep.Sessions++
	rep.Results = append(rep.Results, res)
	switch {
	case res.Failed():
		rep.Failed++
		return
	case res.Partial:
		rep.Partial++
	}
	rep.Succeeded++
	if res.Cached {
		rep.Cached++
	}
	rep.Emitted += res.Emitted
	rep.Filtered += res.Filtered
}

// Process synthesizes one session under the time budget, consulting the result
// cache first. It never panics and never returns an error; failures are reported
// in the result.
func (r *Runner) Process(ctx context.Context, session models.Session) (res SessionResult) {
	start := time.Now()
	res = SessionResult{SessionID: session.ID, EndedAt: session.EndedAt}
	defer func() {
		if p := recover(); p != nil {
			res = SessionResult{
				SessionID: session.ID,
				Err:       utils.NewAppError("synthesize", "session "+session.ID, fmt.Errorf("panic: %v", p)),
				ErrClass:  ClassPanic,
			}
		}
		res.Duration = time.Since(start)
		r.observe(res)
	}()

	key := r.cacheKey(session)
	if key != "" {
		entry, err := r.results.Load(ctx, key)
		switch {
		case err == nil:
			metrics.ObserveCacheLookup(metrics.CacheHit)
			res.Examples = entry.Examples
			res.Considered = entry.Considered
			res.Emitted = len(entry.Examples)
			res.Filtered = entry.Filtered
			res.Sequences = entry.Sequences
			res.Cached = true
			return res
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.ObserveCacheLookup(metrics.CacheMiss)
		default:
			metrics.ObserveCacheLookup(metrics.CacheError)
			r.logger.Warn("result cache lookup failed", slog.String("session_id", session.ID), slog.Any("error", err))
		}
	}

	sessionCtx := ctx
	if r.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, r.opts.SessionTimeout)
		defer cancel()
	}

	out, err := r.synth.Synthesize(sessionCtx, session)
	if err != nil {
		res.Err = err
		res.ErrClass = Classify(err)
		return res
	}
	res.Examples = out.Examples
	res.Considered = out.Considered
	res.Emitted = out.Emitted
	res.Filtered = out.Filtered
	res.Partial = out.Partial
	res.Sequences = out.Segmentation.Sequences

	if key != "" && !out.Partial {
		entry := cache.Entry{Examples: out.Examples, Considered: out.Considered, Filtered: out.Filtered, Sequences: out.Segmentation.Sequences}
		if err := r.results.Store(ctx, key, entry); err != nil {
			r.logger.Warn("result cache store failed", slog.String("session_id", session.ID), slog.Any("error", err))
		}
	}
	return res
}

func (r *Runner) cacheKey(session models.Session) string {
	if r.opts.Fingerprint == "" {
		return ""
	}
	digest, err := cache.SessionDigest(session)
	if err != nil {
		r.logger.Warn("session digest failed", slog.String("session_id", session.ID), slog.Any("error", err))
		return ""
	}
	return r.results.Key(r.opts.Fingerprint, digest)
}

func (r *Runner) observe(res SessionResult) {
	outcome := metrics.OutcomeSuccess
	switch {
	case res.Failed():
		outcome = metrics.OutcomeError
		r.logger.Error("session failed",
			slog.String("session_id", res.SessionID),
			slog.String("error_class", res.ErrClass),
			slog.Any("error", res.Err))
	case res.Cached:
		outcome = metrics.OutcomeCached
	case res.Partial:
		outcome = metrics.OutcomePartial
		r.logger.Warn("session time budget exceeded",
			slog.String("session_id", res.SessionID),
			slog.Int("emitted", res.Emitted),
			slog.Duration("elapsed", res.Duration))
	default:
		r.logger.Debug("session processed",
			slog.String("session_id", res.SessionID),
			slog.Int("emitted", res.Emitted),
			slog.Int("filtered", res.Filtered))
	}
	metrics.ObserveSession(res.Duration, outcome)
	if !res.Failed() {
		metrics.ObserveExamples(res.Examples, res.Filtered)
		if !res.Cached {
			metrics.ObserveSequences(res.Sequences)
		}
	}
}

func malformed(err error) SessionResult {
	res := SessionResult{Err: err, ErrClass: ClassMalformed}
	var le *ingest.LineError
	if errors.As(err, &le) {
		res.Line = le.Line
	}
	metrics.ObserveSession(0, metrics.OutcomeError)
	return res
}

// Classify maps an error onto a stable class string.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ingest.ErrMalformedSession):
		return ClassMalformed
	case errors.Is(err, engine.ErrInvalidSession):
		return ClassInvalid
	default:
		return ClassInternal
	}
}
