package service

import (
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FetchStream 定义了 Fetch 所需的最小集合，方便测试 Mock
type FetchStream interface {
	Send(*wrapperspb.BytesValue) error
}

// GrpcStreamWriter 将 gRPC Fetch 流包装为 io.Writer
type GrpcStreamWriter struct {
	stream FetchStream
}

func NewGrpcStreamWriter(stream FetchStream) *GrpcStreamWriter {
	return &GrpcStreamWriter{stream: stream}
}

// Write 每次写入发送一个 gRPC 包
// Send 会立即序列化消息，调用方随后复用 p 是安全的。
func (w *GrpcStreamWriter) Write(p []byte) (n int, err error) {
	if err := w.stream.Send(wrapperspb.Bytes(p)); err != nil {
		return 0, fmt.Errorf("grpc send failed: %w", err)
	}
	return len(p), nil
}
