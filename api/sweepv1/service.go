// Package sweepv1 defines the procsweep.v1.Sweeper gRPC service spoken
// between the procsweep CLI and the agent running on a worker machine.
// Payloads use protobuf well-known types so no generated code is needed.
package sweepv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "procsweep.v1.Sweeper"

	PingMethod    = "/procsweep.v1.Sweeper/Ping"
	SweepMethod   = "/procsweep.v1.Sweeper/Sweep"
	HistoryMethod = "/procsweep.v1.Sweeper/History"
)

// SweeperClient is the client API for the Sweeper service.
type SweeperClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Sweep(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type sweeperClient struct {
	cc grpc.ClientConnInterface
}

func NewSweeperClient(cc grpc.ClientConnInterface) SweeperClient {
	return &sweeperClient{cc: cc}
}

func (c *sweeperClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, PingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sweeperClient) Sweep(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SweepMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sweeperClient) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HistoryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SweeperServer is the server API for the Sweeper service.
type SweeperServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedSweeperServer can be embedded to get Unimplemented errors for
// methods a server does not provide.
type UnimplementedSweeperServer struct{}

func (UnimplementedSweeperServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}

func (UnimplementedSweeperServer) Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Sweep not implemented")
}

func (UnimplementedSweeperServer) History(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method History not implemented")
}

// RegisterSweeperServer attaches srv to a gRPC server.
func RegisterSweeperServer(s grpc.ServiceRegistrar, srv SweeperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SweeperServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SweeperServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func sweepHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SweeperServer).Sweep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SweepMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SweeperServer).Sweep(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func historyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SweeperServer).History(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HistoryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SweeperServer).History(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the Sweeper service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SweeperServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "Sweep", Handler: sweepHandler},
		{MethodName: "History", Handler: historyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procsweep/v1/sweeper.proto",
}
