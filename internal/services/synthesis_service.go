package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/shoptrace-synth/internal/api"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/runner"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// SessionProcessor synthesizes a single session; *runner.Runner implements it.
type SessionProcessor interface {
	Process(ctx context.Context, session models.Session) runner.SessionResult
}

// SynthesisService implements the gRPC Synthesis service.
type SynthesisService struct {
	logger    *slog.Logger
	processor SessionProcessor
	latencies *utils.LatencyTracker
}

var _ api.SynthesisServer = (*SynthesisService)(nil)

// NewSynthesisService constructs the service facade.
func NewSynthesisService(logger *slog.Logger, processor SessionProcessor) *SynthesisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SynthesisService{
		logger:    logger,
		processor: processor,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Synthesize decodes one session, runs it through the pipeline and returns its
// qualifying examples.
func (s *SynthesisService) Synthesize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.processor == nil {
		return nil, status.Error(codes.FailedPrecondition, "synthesizer not configured")
	}

	session, err := api.SessionFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("Synthesize called", slog.String("session_id", session.ID), slog.Int("interactions", len(session.Interactions)))

	start := time.Now()
	res := s.processor.Process(ctx, session)
	duration := time.Since(start)
	if res.Failed() {
		switch res.ErrClass {
		case runner.ClassInvalid, runner.ClassMalformed:
			return nil, status.Error(codes.InvalidArgument, res.Err.Error())
		default:
			return nil, status.Error(codes.Internal, fmt.Sprintf("synthesis failed: %v", res.Err))
		}
	}

	if total := s.latencies.Observe(duration); total%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("synthesis latency", slog.Duration("p95", p95), slog.Int("samples", s.latencies.Count()), slog.Int("total", total))
	}

	out, err := api.ResultToStruct(res)
	if err != nil {
		s.logger.Error("encode synthesis response failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// LatencyP95 returns the current p95 synthesis latency.
func (s *SynthesisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
