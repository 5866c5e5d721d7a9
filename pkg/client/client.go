package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	climdashrpc "climdash/pkg/api/climdashrpc/v1"
	"climdash/pkg/dataset"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client 封装了与 climdash 服务端的连接
type Client struct {
	conn *grpc.ClientConn
	rpc  climdashrpc.ResolverServiceClient
}

// New 创建客户端
// grpc.NewClient 立即返回，连接在后台建立；网络不通不会在这里报错。
func New(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: climdashrpc.NewResolverServiceClient(conn)}, nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Resolve 远程解析一个数据集
func (c *Client) Resolve(ctx context.Context, ref dataset.Ref) (*resolver.Result, error) {
	return c.resolve(ctx, climdashrpc.QueryFromRef(ref))
}

// ResolvePath 远程解析一个辅助文件
func (c *Client) ResolvePath(ctx context.Context, p string) (*resolver.Result, error) {
	return c.resolve(ctx, climdashrpc.Query{Path: p})
}

func (c *Client) resolve(ctx context.Context, q climdashrpc.Query) (*resolver.Result, error) {
	req, err := climdashrpc.Encode(q)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.Resolve(ctx, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	var res resolver.Result
	if err := climdashrpc.Decode(out, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Catalog 远程枚举目录
func (c *Client) Catalog(ctx context.Context, dir string) (*resolver.Listing, error) {
	req, err := climdashrpc.Encode(climdashrpc.CatalogRequest{Dir: dir})
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.Catalog(ctx, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	var listing resolver.Listing
	if err := climdashrpc.Decode(out, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Open 远程解析并读取数据，返回的 Handle 来自响应头
func (c *Client) Open(ctx context.Context, ref dataset.Ref) (io.ReadCloser, storage.Handle, error) {
	return c.fetch(ctx, climdashrpc.QueryFromRef(ref))
}

// OpenPath 远程读取辅助文件
func (c *Client) OpenPath(ctx context.Context, p string) (io.ReadCloser, storage.Handle, error) {
	return c.fetch(ctx, climdashrpc.Query{Path: p})
}

func (c *Client) fetch(ctx context.Context, q climdashrpc.Query) (io.ReadCloser, storage.Handle, error) {
	req, err := climdashrpc.Encode(q)
	if err != nil {
		return nil, storage.Handle{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.rpc.Fetch(ctx, req)
	if err != nil {
		cancel()
		return nil, storage.Handle{}, fromStatus(err)
	}

	// 服务端在解析失败时不发送响应头，此时 Header 返回 trailer 中的错误
	md, err := stream.Header()
	if err != nil {
		cancel()
		return nil, storage.Handle{}, fromStatus(err)
	}
	if len(md.Get(climdashrpc.HeaderBackend)) == 0 {
		// 没有位置信息：读取第一帧拿到真正的错误
		_, recvErr := stream.Recv()
		cancel()
		if recvErr == nil || recvErr == io.EOF {
			recvErr = errors.New("fetch: server sent no location header")
		}
		return nil, storage.Handle{}, fromStatus(recvErr)
	}

	h := handleFromHeader(md, q)
	return &streamReadCloser{GrpcStreamReader: NewGrpcStreamReader(stream), cancel: cancel}, h, nil
}

func handleFromHeader(md metadata.MD, q climdashrpc.Query) storage.Handle {
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	h := storage.Handle{
		Backend:  first(climdashrpc.HeaderBackend),
		Kind:     types.Kind(first(climdashrpc.HeaderKind)),
		Location: first(climdashrpc.HeaderLocation),
	}
	if ref, p, err := q.Target(); err == nil {
		if p != "" {
			h.Path = p
		} else {
			h.Path = ref.Path()
		}
	}
	return h
}

// fromStatus 把 gRPC 状态还原为领域错误，调用方可以继续使用 errors.Is
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", resolver.ErrNotFound, st.Message())
	case codes.Unavailable:
		for _, d := range st.Details() {
			s, ok := d.(*structpb.Struct)
			if !ok {
				continue
			}
			var ue resolver.UnavailableError
			var detail struct {
				Path     string             `json:"path"`
				Attempts []resolver.Attempt `json:"attempts"`
			}
			if climdashrpc.Decode(s, &detail) == nil {
				ue.Path, ue.Attempts = detail.Path, detail.Attempts
				return &ue
			}
		}
		return fmt.Errorf("%w: %s", resolver.ErrBackendUnavailable, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", dataset.ErrInvalidRef, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return err
	}
}
