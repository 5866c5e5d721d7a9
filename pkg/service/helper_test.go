package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"climdash/pkg/observability"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/storage/disk"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MockFetchStream 模拟服务端流式响应
type MockFetchStream struct {
	grpc.ServerStream
	Ctx    context.Context
	Header metadata.MD
	Data   bytes.Buffer
	Sends  int
}

func (m *MockFetchStream) Context() context.Context {
	if m.Ctx == nil {
		return context.Background()
	}
	return m.Ctx
}

func (m *MockFetchStream) SendHeader(md metadata.MD) error {
	m.Header = md
	return nil
}

func (m *MockFetchStream) Send(b *wrapperspb.BytesValue) error {
	m.Sends++
	m.Data.Write(b.GetValue())
	return nil
}

// writeFile 在目录下写入一个测试文件
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

// setupResolver 构建 local + mirror 两个磁盘后端
func setupResolver(t *testing.T) (*resolver.Resolver, string, string) {
	t.Helper()
	localRoot := t.TempDir()
	mirrorRoot := t.TempDir()

	local, err := disk.NewAdapter("local", localRoot)
	require.NoError(t, err)
	mirror, err := disk.NewAdapter("mirror", mirrorRoot)
	require.NoError(t, err)

	r, err := resolver.New([]storage.Backend{local, mirror}, resolver.Config{},
		resolver.WithLogger(observability.Discard()))
	require.NoError(t, err)
	return r, localRoot, mirrorRoot
}
