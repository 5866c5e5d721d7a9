package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"climdash/pkg/config"
	"climdash/pkg/dataset"
	"climdash/pkg/observability"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/storage/cache"
	"climdash/pkg/storage/disk"
	"climdash/pkg/storage/httpstore"
	"climdash/pkg/storage/s3"
	"climdash/pkg/storage/sftpstore"
	"climdash/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  config.BackendConfig
		want any
	}{
		{"disk", config.BackendConfig{Name: "local", Type: config.TypeDisk, Path: t.TempDir()}, &disk.Adapter{}},
		{"http", config.BackendConfig{Name: "portal", Type: config.TypeHTTP, URL: "https://data.example.org"}, &httpstore.Adapter{}},
		{"sftp", config.BackendConfig{Name: "mirror", Type: config.TypeSFTP, Addr: "h:22", User: "u", Password: "p"}, &sftpstore.Adapter{}},
		{"s3", config.BackendConfig{Name: "drive", Type: config.TypeS3, Bucket: "climate", Region: "us-east-1", AccessKeyID: "k", SecretAccessKey: "s"}, &s3.Adapter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(ctx, tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
			assert.Equal(t, tt.cfg.Name, b.Name())
			assert.Equal(t, tt.cfg.Kind(), b.Kind())
		})
	}
}

func TestNewBackend_Errors(t *testing.T) {
	_, err := NewBackend(context.Background(), config.BackendConfig{Name: "drive", Type: config.TypeS3})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewBackend(context.Background(), config.BackendConfig{Name: "x", Type: "ftp"})
	assert.ErrorContains(t, err, "unsupported storage type")
}

func testSettings(root string) *config.Settings {
	return &config.Settings{
		Backends: []config.BackendConfig{
			{Name: "local", Type: config.TypeDisk, Path: root},
		},
		Resolver: resolver.Config{Budget: time.Second, ProbeTimeout: 500 * time.Millisecond},
		Cache:    config.CacheConfig{Type: config.CacheMemory, TTL: time.Minute},
		Log:      config.LogConfig{Level: "error"},
	}
}

func TestNew_EndToEnd(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "sn", "ts", "tasmax", "tasmax_rcp45.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("year,value\n"), 0644))

	s := testSettings(root)
	s.Audit = config.AuditConfig{Enabled: true}
	s.Audit.Driver = "sqlite"
	s.Audit.Path = filepath.Join(t.TempDir(), "audit.db")

	a, err := New(context.Background(), s, WithLogger(observability.Discard()), WithMetrics(observability.NewMetricsForTesting()))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &cache.Memory{}, a.Cache)
	require.NotNil(t, a.Audit)

	ref, err := dataset.New("sn", types.ViewTimeSeries, "tasmax", "rcp45", dataset.Options{})
	require.NoError(t, err)

	res, err := a.Resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "local", res.Handle.Backend)

	history, err := a.Audit.ForKey(context.Background(), ref.Key(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "found", history[0].Outcome)
}

func TestNew_RedisFallsBackToMemory(t *testing.T) {
	s := testSettings(t.TempDir())
	// 不可达的 Redis
	s.Cache = config.CacheConfig{Type: config.CacheRedis, TTL: time.Minute, RedisURL: "redis://127.0.0.1:1/0"}

	a, err := New(context.Background(), s, WithLogger(observability.Discard()), WithMetrics(observability.NewMetricsForTesting()))
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &cache.Memory{}, a.Cache)
}

func TestNew_CacheNone(t *testing.T) {
	s := testSettings(t.TempDir())
	s.Cache = config.CacheConfig{Type: config.CacheNone}

	a, err := New(context.Background(), s, WithLogger(observability.Discard()), WithMetrics(observability.NewMetricsForTesting()))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, cache.Nop{}, a.Cache)
}

func TestStartWatchers_InvalidatesCache(t *testing.T) {
	root := t.TempDir()
	s := testSettings(root)
	s.Watch.Enabled = true

	a, err := New(context.Background(), s, WithLogger(observability.Discard()), WithMetrics(observability.NewMetricsForTesting()))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.StartWatchers(ctx))

	// 先缓存一条位置，再修改本地目录
	a.Cache.Set(ctx, "sn/ts/a.csv", storage.Handle{Backend: "local", Kind: types.KindLocal, Path: "sn/ts/a.csv"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sn", "ts"), 0755))

	require.Eventually(t, func() bool {
		_, ok := a.Cache.Get(ctx, "sn/ts/a.csv")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}
