package grpcoracle

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "xdao.covenants.chain.grpcoracle.v1.Oracle"

// OracleServer is the server API for the Oracle gRPC service.
//
// Messages are protobuf well-known types so the package needs no protoc
// toolchain. Structured messages use google.protobuf.Struct with the fields
// documented on Server.
type OracleServer interface {
	Height(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
	RawTx(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	SpendStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unspent(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	Broadcast(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

// UnimplementedOracleServer can be embedded to have forward compatible implementations.
type UnimplementedOracleServer struct{}

func (UnimplementedOracleServer) Height(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Height not implemented")
}
func (UnimplementedOracleServer) RawTx(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method RawTx not implemented")
}
func (UnimplementedOracleServer) SpendStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SpendStatus not implemented")
}
func (UnimplementedOracleServer) Unspent(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Unspent not implemented")
}
func (UnimplementedOracleServer) Broadcast(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Broadcast not implemented")
}

// RegisterOracleServer registers the Oracle service on a gRPC server.
func RegisterOracleServer(s grpc.ServiceRegistrar, srv OracleServer) {
	s.RegisterService(&Oracle_ServiceDesc, srv)
}

// OracleClient is the client API for the Oracle gRPC service.
type OracleClient interface {
	Height(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt32Value, error)
	RawTx(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	SpendStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Unspent(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Broadcast(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type oracleClient struct{ cc grpc.ClientConnInterface }

func NewOracleClient(cc grpc.ClientConnInterface) OracleClient { return &oracleClient{cc: cc} }

func (c *oracleClient) Height(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt32Value, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Height", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *oracleClient) RawTx(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RawTx", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *oracleClient) SpendStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SpendStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *oracleClient) Unspent(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Unspent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *oracleClient) Broadcast(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Broadcast", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// unary adapts a typed handler to grpc.MethodDesc.
func unary[Req any, Resp any](method string, newReq func() Req, call func(OracleServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OracleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(OracleServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Oracle_ServiceDesc is the grpc.ServiceDesc for the Oracle service.
var Oracle_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OracleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Height", func() *emptypb.Empty { return new(emptypb.Empty) }, OracleServer.Height),
		unary("RawTx", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, OracleServer.RawTx),
		unary("SpendStatus", func() *structpb.Struct { return new(structpb.Struct) }, OracleServer.SpendStatus),
		unary("Unspent", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, OracleServer.Unspent),
		unary("Broadcast", func() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) }, OracleServer.Broadcast),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oracle.proto",
}
