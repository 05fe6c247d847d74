package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/shoptrace-synth/internal/api"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/runner"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

const sessionDoc = `{"id": "sess-1", "interactions": [{"type": "click", "timestamp": 1717232400000, "url": "https://shop.example.com/cart"}]}`

type processorStub struct {
	calls  int
	result runner.SessionResult
}

func (p *processorStub) Process(ctx context.Context, session models.Session) runner.SessionResult {
	p.calls++
	res := p.result
	res.SessionID = session.ID
	return res
}

func request(t *testing.T) *structpb.Struct {
	t.Helper()
	req, err := api.NewSessionRequest([]byte(sessionDoc))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func TestSynthesize(t *testing.T) {
	stub := &processorStub{result: runner.SessionResult{Considered: 1, Filtered: 1}}
	service := NewSynthesisService(nil, stub)

	resp, err := service.Synthesize(context.Background(), request(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one call, got %d", stub.calls)
	}
	if resp.GetFields()["session_id"].GetStringValue() != "sess-1" || len(resp.GetFields()["examples"].GetListValue().GetValues()) != 0 {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestSynthesizeRejectsMalformedRequests(t *testing.T) {
	stub := &processorStub{}
	service := NewSynthesisService(nil, stub)

	if _, err := service.Synthesize(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	bad, _ := api.NewSessionRequest([]byte(`{"interactions": []}`))
	if _, err := service.Synthesize(context.Background(), bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("malformed requests must not reach the pipeline")
	}
}

func TestSynthesizeWithoutProcessor(t *testing.T) {
	service := NewSynthesisService(nil, nil)
	if _, err := service.Synthesize(context.Background(), request(t)); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestSynthesizeMapsFailures(t *testing.T) {
	cases := map[string]codes.Code{
		runner.ClassInvalid:  codes.InvalidArgument,
		runner.ClassPanic:    codes.Internal,
		runner.ClassInternal: codes.Internal,
	}
	for class, want := range cases {
		stub := &processorStub{result: runner.SessionResult{Err: errors.New("failed"), ErrClass: class}}
		service := NewSynthesisService(nil, stub)
		if _, err := service.Synthesize(context.Background(), request(t)); status.Code(err) != want {
			t.Fatalf("%s: expected %v, got %v", class, want, err)
		}
	}
}

func TestSynthesizeLogsLatencyAfterWindowFills(t *testing.T) {
	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	service := NewSynthesisService(logger, &processorStub{})
	service.latencies = utils.NewLatencyTracker(5)

	for i := 0; i < 40; i++ {
		if _, err := service.Synthesize(context.Background(), request(t)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := strings.Count(logs.String(), "synthesis latency"); got != 2 {
		t.Fatalf("expected a latency line every 20 calls, got %d:\n%s", got, logs.String())
	}
}
