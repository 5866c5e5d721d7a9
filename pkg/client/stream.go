package client

import (
	"context"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FetchStream 定义了读取 Fetch 流所需的最小集合，方便测试 Mock
type FetchStream interface {
	Recv() (*wrapperspb.BytesValue, error)
}

// GrpcStreamReader 将 gRPC Fetch 流包装为 io.Reader
type GrpcStreamReader struct {
	stream      FetchStream
	internalBuf []byte // 从 Recv 拿到、还没被 Read 读走的数据
	err         error  // 流的状态错误 (如 EOF)
}

func NewGrpcStreamReader(stream FetchStream) *GrpcStreamReader {
	return &GrpcStreamReader{stream: stream}
}

// Read 实现了 io.Reader 接口
// 典型的“缓冲-消费”状态机：缓冲为空时才去拉取下一帧
func (r *GrpcStreamReader) Read(p []byte) (int, error) {
	for len(r.internalBuf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		msg, err := r.stream.Recv()
		if err != nil {
			r.err = fromStatus(err) // io.EOF 原样保留
			return 0, r.err
		}
		// 空帧跳过
		r.internalBuf = msg.GetValue()
	}

	copied := copy(p, r.internalBuf)
	r.internalBuf = r.internalBuf[copied:]
	return copied, nil
}

type streamReadCloser struct {
	*GrpcStreamReader
	cancel context.CancelFunc
}

// Close 取消流，提前关闭时服务端会收到 Canceled
func (s *streamReadCloser) Close() error {
	s.cancel()
	return nil
}
