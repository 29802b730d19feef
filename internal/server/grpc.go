package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
)

const (
	ExtractionServiceName = "docextract.v1.ExtractionService"
	ExtractMethod         = "/" + ExtractionServiceName + "/Extract"
)

// ExtractionServer handles docextract.v1.ExtractionService. Messages are
// google.protobuf.Struct so no generated code is needed.
type ExtractionServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ExtractionServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: extractHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docextract/v1/extraction.proto",
}

func extractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExtractMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ExtractionClient calls docextract.v1.ExtractionService.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExtractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractionService adapts the pipeline to gRPC.
type ExtractionService struct {
	proc    Extractor
	timeout time.Duration
	logger  *slog.Logger
}

var _ ExtractionServer = (*ExtractionService)(nil)

func NewExtractionService(proc Extractor, timeout time.Duration, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{proc: proc, timeout: timeout, logger: logger}
}

// Extract reads text, file_base64, media_type, filename, mode and mode_input.
// Pipeline failures are returned in the response; only undecodable input is a
// gRPC error.
func (s *ExtractionService) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	fields := in.GetFields()
	str := func(k string) string { return fields[k].GetStringValue() }

	req := pipeline.Request{
		Text:      str("text"),
		MediaType: str("media_type"),
		Filename:  str("filename"),
		Mode:      str("mode"),
		ModeInput: str("mode_input"),
	}
	if b64 := str("file_base64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			s.logger.Warn("grpc.extract.bad_base64", "error", err)
			return nil, common.InvalidArgumentErrorf("file_base64 is not valid base64: %v", err)
		}
		req.File = data
		if req.MediaType == "" {
			req.MediaType = extract.DetectMediaType(req.Filename, data)
		}
	}

	res := s.proc.Process(ctx, req)
	out, err := resultStruct(res)
	if err != nil {
		s.logger.Error("grpc.extract.encode_failed", "error", err)
		return nil, common.InternalError("could not encode result")
	}
	return out, nil
}

func resultStruct(res pipeline.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCServer hosts the extraction, health and reflection services.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewGRPCServer(cfg Config, proc Extractor, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	// base64 inflates by 4/3
	maxMsg := int(proc.MaxInputBytes()*4/3) + bodySlack

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.ChainUnaryInterceptor(requestIDInterceptor(logger)),
	)
	srv.RegisterService(&ExtractionServiceDesc, NewExtractionService(proc, cfg.RequestTimeout, logger))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ExtractionServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(srv)
	return &GRPCServer{srv: srv, health: hs, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.logger.Info("grpc.serve", "addr", lis.Addr().String())
	if err := g.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the server NOT_SERVING and drains in-flight calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}

// requestIDInterceptor takes x-request-id from metadata or mints one, and logs
// each call.
func requestIDInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rid := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				rid = v[0]
			}
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, rid)
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", rid))

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"req_id", rid,
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
