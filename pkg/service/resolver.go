// Package service 实现 climdash.v1.ResolverService
package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	climdashrpc "climdash/pkg/api/climdashrpc/v1"
	"climdash/pkg/resolver"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FetchChunkSize 是 Fetch 每个数据包的大小
const FetchChunkSize = 64 << 10

type ResolverService struct {
	climdashrpc.UnimplementedResolverServiceServer
	resolver *resolver.Resolver
	logger   *slog.Logger
}

func NewResolverService(r *resolver.Resolver, logger *slog.Logger) *ResolverService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolverService{resolver: r, logger: logger}
}

// Resolve 返回数据集 (或辅助文件) 所在的位置
func (s *ResolverService) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.resolve(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := climdashrpc.Encode(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func (s *ResolverService) resolve(ctx context.Context, req *structpb.Struct) (*resolver.Result, error) {
	var q climdashrpc.Query
	if err := climdashrpc.Decode(req, &q); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ref, p, err := q.Target()
	if err != nil {
		return nil, err
	}
	if p != "" {
		return s.resolver.ResolvePath(ctx, p)
	}
	return s.resolver.Resolve(ctx, ref)
}

// Catalog 列出某个目录在所有后端上的内容
func (s *ResolverService) Catalog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var cr climdashrpc.CatalogRequest
	if err := climdashrpc.Decode(req, &cr); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	listing, err := s.resolver.Catalog(ctx, cr.Dir)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := climdashrpc.Encode(listing)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode listing: %v", err)
	}
	return out, nil
}

// Fetch 解析并流式返回数据内容
// 解析到的位置放在响应头里，数据按 FetchChunkSize 分块发送。
func (s *ResolverService) Fetch(req *structpb.Struct, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	ctx := stream.Context()

	// 1. 解析请求
	var q climdashrpc.Query
	if err := climdashrpc.Decode(req, &q); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ref, p, err := q.Target()
	if err != nil {
		return toStatus(err)
	}

	// 2. 解析位置并打开
	var (
		rc  io.ReadCloser
		res *resolver.Result
	)
	if p != "" {
		rc, res, err = s.resolver.OpenPath(ctx, p)
	} else {
		rc, res, err = s.resolver.Open(ctx, ref)
	}
	if err != nil {
		return toStatus(err)
	}
	defer rc.Close()

	// 3. 先发送位置信息
	header := metadata.Pairs(
		climdashrpc.HeaderBackend, res.Handle.Backend,
		climdashrpc.HeaderKind, res.Handle.Kind.String(),
		climdashrpc.HeaderLocation, res.Handle.Location,
		climdashrpc.HeaderCached, strconv.FormatBool(res.Cached),
	)
	if err := stream.SendHeader(header); err != nil {
		return err
	}

	// 4. 数据流
	n, err := io.CopyBuffer(NewGrpcStreamWriter(stream), rc, make([]byte, FetchChunkSize))
	if err != nil {
		if ctx.Err() != nil {
			return status.FromContextError(ctx.Err()).Err()
		}
		s.logger.WarnContext(ctx, "fetch interrupted", "location", res.Handle.Location, "sent", n, "error", err)
		return status.Errorf(codes.Internal, "fetch %s: %v", res.Handle.Location, err)
	}
	return nil
}
