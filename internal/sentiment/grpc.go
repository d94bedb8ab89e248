package sentiment

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName   = "sentiment.SentimentService"
	analyzeMethod = "/" + serviceName + "/Analyze"
	codecName     = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries plain Go structs over gRPC so the sentiment worker does
// not need generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// GRPCProvider calls an external sentiment worker.
type GRPCProvider struct {
	conn *grpc.ClientConn
}

func NewGRPCProvider(addr string, opts ...grpc.DialOption) (*GRPCProvider, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial sentiment worker: %w", err)
	}
	return &GRPCProvider{conn: conn}, nil
}

func (g *GRPCProvider) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

func (g *GRPCProvider) GetSentiment(ctx context.Context, in Context) (Response, error) {
	var out Response
	if err := g.conn.Invoke(ctx, analyzeMethod, &in, &out, grpc.CallContentSubtype(codecName)); err != nil {
		return Response{}, fmt.Errorf("sentiment worker: %w", err)
	}
	return out, nil
}

// Server is implemented by sentiment workers written in Go.
type Server interface {
	Analyze(ctx context.Context, in *Context) (*Response, error)
}

// RegisterServer exposes srv on s under the same method the client calls.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Analyze",
		Handler:    analyzeHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sentiment.json",
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Context)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Analyze(ctx, req.(*Context))
	}
	return interceptor(ctx, in, info, handler)
}
