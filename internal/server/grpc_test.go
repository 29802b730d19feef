package server

import (
	"context"
	"encoding/base64"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/doc-extractor/constants"
)

func dialBufconn(t *testing.T, proc Extractor) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(Config{}, proc, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCExtractScenario(t *testing.T) {
	conn := dialBufconn(t, newTestProcessor(0, `{"Summary":"Revenue grew 10%"}`))
	client := NewExtractionClient(conn)

	in, err := structpb.NewStruct(map[string]any{
		"text":       "Revenue grew 10%.",
		"mode":       constants.ModeHeadings,
		"mode_input": "Summary",
	})
	require.NoError(t, err)

	out, err := client.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"success": true,
		"data":    map[string]any{"Summary": "Revenue grew 10%"},
	}, out.AsMap())
}

func TestGRPCExtractFailureInResponse(t *testing.T) {
	conn := dialBufconn(t, newTestProcessor(0, `{}`))
	client := NewExtractionClient(conn)

	in, err := structpb.NewStruct(map[string]any{
		"file_base64": base64.StdEncoding.EncodeToString([]byte("PK\x03\x04")),
		"media_type":  "application/zip",
		"mode":        constants.ModeHeadings,
		"mode_input":  "Summary",
	})
	require.NoError(t, err)

	out, err := client.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"success": false,
		"error":   "Unsupported file type: application/zip",
	}, out.AsMap())
}

func TestGRPCExtractBadBase64(t *testing.T) {
	conn := dialBufconn(t, newTestProcessor(0, `{}`))
	in, err := structpb.NewStruct(map[string]any{"file_base64": "!!!", "mode": "headings", "mode_input": "A"})
	require.NoError(t, err)

	_, err = NewExtractionClient(conn).Extract(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	conn := dialBufconn(t, newTestProcessor(0, `{}`))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ExtractionServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
