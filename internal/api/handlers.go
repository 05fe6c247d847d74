package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/shoptrace-synth/internal/ingest"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/runner"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "shoptrace.synth.v1.Synthesis"
	// SynthesizeMethod is the full method path of the unary Synthesize call.
	SynthesizeMethod = "/" + ServiceName + "/Synthesize"
)

// SynthesisServer is the server API for the Synthesis service. Requests carry a
// "session" object in the ingest wire format; responses mirror SynthesisResponse.
type SynthesisServer interface {
	Synthesize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// SynthesisServiceDesc describes the Synthesis service for grpc.Server.RegisterService.
var SynthesisServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SynthesisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Synthesize", Handler: synthesizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shoptrace/synth/v1/synthesis.proto",
}

// RegisterSynthesisServer registers srv on s.
func RegisterSynthesisServer(s grpc.ServiceRegistrar, srv SynthesisServer) {
	s.RegisterService(&SynthesisServiceDesc, srv)
}

func synthesizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SynthesisServer).Synthesize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SynthesizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SynthesisServer).Synthesize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SynthesisClient calls the Synthesis service.
type SynthesisClient struct {
	cc grpc.ClientConnInterface
}

// NewSynthesisClient wraps an established connection.
func NewSynthesisClient(cc grpc.ClientConnInterface) *SynthesisClient {
	return &SynthesisClient{cc: cc}
}

// Synthesize invokes the unary Synthesize method.
func (c *SynthesisClient) Synthesize(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SynthesizeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SynthesisResponse is the JSON shape of a Synthesize reply.
type SynthesisResponse struct {
	SessionID  string                   `json:"session_id"`
	Examples   []models.TrainingExample `json:"examples"`
	Considered int                      `json:"considered"`
	Emitted    int                      `json:"emitted"`
	Filtered   int                      `json:"filtered"`
	Partial    bool                     `json:"partial"`
	Cached     bool                     `json:"cached"`
	Sequences  []SequenceSummary        `json:"sequences"`
}

// SequenceSummary describes one detected flow without its member records.
type SequenceSummary struct {
	FlowType string                `json:"flow_type"`
	Status   models.SequenceStatus `json:"status"`
	Start    int                   `json:"start"`
	End      int                   `json:"end"`
}

// NewSessionRequest wraps a wire-format session document as a request.
func NewSessionRequest(sessionJSON []byte) (*structpb.Struct, error) {
	session := new(structpb.Struct)
	if err := protojson.Unmarshal(sessionJSON, session); err != nil {
		return nil, fmt.Errorf("session document: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session": structpb.NewStructValue(session),
	}}, nil
}

// SessionFromStruct decodes the request's "session" object through the same path
// as line-delimited input.
func SessionFromStruct(req *structpb.Struct) (models.Session, error) {
	if req == nil {
		return models.Session{}, fmt.Errorf("request is nil")
	}
	field, ok := req.GetFields()["session"]
	if !ok || field.GetStructValue() == nil {
		return models.Session{}, fmt.Errorf("session object is required")
	}
	data, err := protojson.Marshal(field.GetStructValue())
	if err != nil {
		return models.Session{}, fmt.Errorf("encode session: %w", err)
	}
	return ingest.Decode(data)
}

// ToSynthesisResponse flattens a session result.
func ToSynthesisResponse(res runner.SessionResult) SynthesisResponse {
	resp := SynthesisResponse{
		SessionID:  res.SessionID,
		Examples:   res.Examples,
		Considered: res.Considered,
		Emitted:    res.Emitted,
		Filtered:   res.Filtered,
		Partial:    res.Partial,
		Cached:     res.Cached,
		Sequences:  make([]SequenceSummary, 0, len(res.Sequences)),
	}
	if resp.Examples == nil {
		resp.Examples = []models.TrainingExample{}
	}
	for _, seq := range res.Sequences {
		resp.Sequences = append(resp.Sequences, SequenceSummary{FlowType: seq.FlowType, Status: seq.Status, Start: seq.Start, End: seq.End})
	}
	return resp
}

// ResultToStruct renders a session result as the reply message.
func ResultToStruct(res runner.SessionResult) (*structpb.Struct, error) {
	data, err := json.Marshal(ToSynthesisResponse(res))
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}
