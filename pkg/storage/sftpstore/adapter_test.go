package sftpstore

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memServer 是一个内存 SFTP 服务端，每次拨号创建一条新的管道会话
type memServer struct {
	handlers sftp.Handlers
	dials    int32
}

func newMemServer() *memServer {
	return &memServer{handlers: sftp.InMemHandler()}
}

func (m *memServer) dial(ctx context.Context) (*sftp.Client, io.Closer, error) {
	atomic.AddInt32(&m.dials, 1)

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, m.handlers)
	go func() {
		_ = server.Serve()
		server.Close()
	}()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		clientConn.Close()
		return nil, nil, err
	}
	return client, clientConn, nil
}

// seed 通过一条独立会话写入测试数据
func (m *memServer) seed(t *testing.T, files map[string]string) {
	t.Helper()
	client, closer, err := m.dial(context.Background())
	require.NoError(t, err)
	defer closer.Close()
	defer client.Close()

	for p, content := range files {
		dir := p[:len(p)-len(lastSegment(p))-1]
		require.NoError(t, client.MkdirAll(dir))
		f, err := client.Create(p)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	atomic.StoreInt32(&m.dials, 0)
}

func lastSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func newTestAdapter(t *testing.T) (*Adapter, *memServer) {
	t.Helper()
	srv := newMemServer()
	srv.seed(t, map[string]string{
		"/data/sn/ts/tasmax/tasmax_rcp45.csv": "year,value\n",
		"/data/sn/ts/pr/pr_rcp45.csv":         "year,value\n",
		"/data/sn/ts/.lock":                   "",
	})
	a := NewAdapterWithDialer("mirror", Config{Addr: "mirror.example.org:22", User: "climate", Root: "/data"}, srv.dial)
	t.Cleanup(func() { a.Close() })
	return a, srv
}

func TestSFTPStore_Has(t *testing.T) {
	store, srv := newTestAdapter(t)
	ctx := context.Background()

	assert.Equal(t, types.KindHosted, store.Kind())

	ok, err := store.Has(ctx, "sn/ts/tasmax/tasmax_rcp45.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Has(ctx, "sn/ts/tasmax/tasmax_rcp85.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Has(ctx, "sn/ts/tasmax")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not datasets")

	// 惰性拨号：多次操作复用同一会话
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.dials))
}

func TestSFTPStore_OpenAndList(t *testing.T) {
	store, _ := newTestAdapter(t)
	ctx := context.Background()

	rc, err := store.Open(ctx, "sn/ts/pr/pr_rcp45.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "year,value\n", string(data))

	_, err = store.Open(ctx, "sn/ts/pr/missing.csv")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entries, err := store.List(ctx, "sn/ts")
	require.NoError(t, err)
	assert.Equal(t, []storage.Entry{
		{Name: "pr", IsDir: true},
		{Name: "tasmax", IsDir: true},
	}, entries)

	_, err = store.List(ctx, "sn/map")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSFTPStore_ReconnectAfterClose(t *testing.T) {
	store, srv := newTestAdapter(t)
	ctx := context.Background()

	_, err := store.Has(ctx, "sn/ts/pr/pr_rcp45.csv")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ok, err := store.Has(ctx, "sn/ts/pr/pr_rcp45.csv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.dials))
}

func TestSFTPStore_DialTimeout(t *testing.T) {
	blocking := func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	store := NewAdapterWithDialer("slow", Config{Addr: "slow:22", User: "u"}, blocking)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.Has(ctx, "a.csv")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSFTPStore_UnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	store, err := NewAdapter("down", Config{Addr: addr, User: "u", Password: "p", Timeout: time.Second})
	require.NoError(t, err)

	_, err = store.Has(context.Background(), "a.csv")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestSFTPStore_Config(t *testing.T) {
	_, err := NewAdapter("x", Config{Addr: "h:22"})
	assert.Error(t, err)

	_, err = NewAdapter("x", Config{Addr: "h:22", User: "u"})
	assert.Error(t, err, "auth is required")

	_, err = NewAdapter("x", Config{Addr: "h:22", User: "u", KeyFile: "/nonexistent/id_ed25519"})
	assert.Error(t, err)

	store, err := NewAdapter("x", Config{Addr: "h:22", User: "u", Password: "p", Root: "/srv/climate"})
	require.NoError(t, err)
	assert.Equal(t, "sftp://u@h:22/srv/climate/sn/ts/a.csv", store.Locate("sn/ts/a.csv"))
}
