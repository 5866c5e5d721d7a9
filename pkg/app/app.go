// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"climdash/pkg/audit"
	"climdash/pkg/config"
	"climdash/pkg/observability"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/storage/cache"
	"climdash/pkg/storage/disk"
	"climdash/pkg/storage/httpstore"
	"climdash/pkg/storage/s3"
	"climdash/pkg/storage/sftpstore"
	"climdash/pkg/watch"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Backends []storage.Backend
	Cache    cache.Cache
	Audit    *audit.Repository // 未启用审计时为 nil
	Resolver *resolver.Resolver

	closers []io.Closer
}

type options struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics 注入指标 (测试中使用独立的 Registry)
func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

// New 是工厂函数，负责组装这一台机器
// 它只依赖 Settings，不知道具体的 CLI 命令
func New(ctx context.Context, s *config.Settings, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger(s.Log.Level, s.Log.Format, nil)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics()
	}

	a := &App{Settings: s, Logger: o.logger, Metrics: o.metrics}

	// 1. 初始化后端 (Dependency Injection)
	for _, bc := range s.Backends {
		b, err := NewBackend(ctx, bc)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init backend %q: %w", bc.Name, err)
		}
		a.Backends = append(a.Backends, b)
		if c, ok := b.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	// 2. 初始化缓存
	c, err := a.initCache(s.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = c

	// 3. 初始化审计
	resolverOpts := []resolver.Option{
		resolver.WithCache(a.Cache),
		resolver.WithLogger(a.Logger),
		resolver.WithMetrics(a.Metrics),
	}
	if s.Audit.Enabled {
		db, err := audit.NewDB(ctx, s.Audit.Config)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init audit: %w", err)
		}
		a.closers = append(a.closers, db)
		a.Audit = audit.NewRepository(db)
		resolverOpts = append(resolverOpts, resolver.WithRecorder(a.Audit))
	}

	// 4. 组装解析器
	r, err := resolver.New(a.Backends, s.Resolver, resolverOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init resolver: %w", err)
	}
	a.Resolver = r

	return a, nil
}

// NewBackend 根据配置创建一个后端
func NewBackend(ctx context.Context, bc config.BackendConfig) (storage.Backend, error) {
	switch bc.Type {
	case config.TypeDisk:
		return disk.NewAdapter(bc.Name, bc.Path)
	case config.TypeHTTP:
		return httpstore.NewAdapter(bc.Name, httpstore.Config{
			BaseURL: bc.URL,
			Token:   bc.Token,
			Timeout: bc.Timeout,
		})
	case config.TypeSFTP:
		return sftpstore.NewAdapter(bc.Name, sftpstore.Config{
			Addr:       bc.Addr,
			User:       bc.User,
			Password:   bc.Password,
			KeyFile:    bc.KeyFile,
			KnownHosts: bc.KnownHosts,
			Root:       bc.Root,
			Timeout:    bc.Timeout,
		})
	case config.TypeS3:
		if bc.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, bc.Name, s3.Config{
			Endpoint:        bc.Endpoint,
			Region:          bc.Region,
			Bucket:          bc.Bucket,
			Prefix:          bc.Prefix,
			AccessKeyID:     bc.AccessKeyID,
			SecretAccessKey: bc.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", bc.Type)
	}
}

func (a *App) initCache(cc config.CacheConfig) (cache.Cache, error) {
	switch cc.Type {
	case config.CacheNone:
		return cache.Nop{}, nil
	case config.CacheMemory, "":
		return cache.NewMemory(cc.TTL, cc.MaxEntries, nil), nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(cache.RedisConfig{URL: cc.RedisURL, TTL: cc.TTL}, a.Logger)
		if err != nil {
			// 共享缓存不可用时退化为进程内缓存，解析本身不受影响
			a.Logger.Warn("redis cache unavailable, falling back to memory", "error", err)
			return cache.NewMemory(cc.TTL, cc.MaxEntries, nil), nil
		}
		a.closers = append(a.closers, rc)
		return rc, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cc.Type)
	}
}

// StartWatchers 为每个本地后端启动文件监听，ctx 结束时停止
func (a *App) StartWatchers(ctx context.Context) error {
	if !a.Settings.Watch.Enabled {
		return nil
	}
	for _, b := range a.Backends {
		d, ok := b.(*disk.Adapter)
		if !ok {
			continue
		}
		w, err := watch.New(d.Root(), a.Resolver, a.Logger, a.Metrics)
		if err != nil {
			// 本地目录暂时不存在 (未挂载) 时跳过监听
			a.Logger.Warn("local backend not watched", "backend", d.Name(), "error", err)
			continue
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				a.Logger.Error("watcher stopped", "backend", d.Name(), "error", err)
			}
		}()
	}
	return nil
}

// Close 释放连接 (SFTP 会话、Redis、数据库)
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
