// Package climdashrpc 定义 climdash.v1.ResolverService 的 gRPC 描述
//
// 请求和响应使用 google.protobuf.Struct 承载 JSON 形状的载荷，
// Fetch 以 google.protobuf.BytesValue 分块返回数据。
package climdashrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "climdash.v1.ResolverService"

	ResolveMethod = "/climdash.v1.ResolverService/Resolve"
	CatalogMethod = "/climdash.v1.ResolverService/Catalog"
	FetchMethod   = "/climdash.v1.ResolverService/Fetch"
)

// 元数据键：Fetch 在响应头中携带解析到的位置
const (
	HeaderBackend  = "climdash-backend"
	HeaderKind     = "climdash-kind"
	HeaderLocation = "climdash-location"
	HeaderCached   = "climdash-cached"
)

// ResolverServiceServer 是服务端需要实现的接口
type ResolverServiceServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Catalog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fetch(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// UnimplementedResolverServiceServer 可嵌入以获得前向兼容
type UnimplementedResolverServiceServer struct{}

func (UnimplementedResolverServiceServer) Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Resolve not implemented")
}

func (UnimplementedResolverServiceServer) Catalog(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Catalog not implemented")
}

func (UnimplementedResolverServiceServer) Fetch(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return status.Error(codes.Unimplemented, "method Fetch not implemented")
}

func RegisterResolverServiceServer(s grpc.ServiceRegistrar, srv ResolverServiceServer) {
	s.RegisterService(&ResolverService_ServiceDesc, srv)
}

func _ResolverService_Resolve_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServiceServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServiceServer).Resolve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResolverService_Catalog_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServiceServer).Catalog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CatalogMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServiceServer).Catalog(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResolverService_Fetch_Handler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ResolverServiceServer).Fetch(in, &grpc.GenericServerStream[structpb.Struct, wrapperspb.BytesValue]{ServerStream: stream})
}

// ResolverService_ServiceDesc 是手写的服务描述，等价于 protoc-gen-go-grpc 的输出
var ResolverService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: _ResolverService_Resolve_Handler},
		{MethodName: "Catalog", Handler: _ResolverService_Catalog_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Fetch", Handler: _ResolverService_Fetch_Handler, ServerStreams: true},
	},
	Metadata: "climdash/v1/resolver.proto",
}

// ResolverServiceClient 是客户端接口
type ResolverServiceClient interface {
	Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Catalog(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Fetch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error)
}

type resolverServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewResolverServiceClient(cc grpc.ClientConnInterface) ResolverServiceClient {
	return &resolverServiceClient{cc: cc}
}

func (c *resolverServiceClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resolverServiceClient) Catalog(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CatalogMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resolverServiceClient) Fetch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	stream, err := c.cc.NewStream(ctx, &ResolverService_ServiceDesc.Streams[0], FetchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
