// Package httpapi 提供 REST 接口以及健康检查和指标端点
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"climdash/pkg/audit"
	"climdash/pkg/resolver"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HistoryStore 是审计记录的只读视图
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]audit.ResolutionRecord, error)
	ForKey(ctx context.Context, key string, limit int) ([]audit.ResolutionRecord, error)
}

// Server 暴露解析接口和 /healthz、/readyz、/metrics
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	resolver   *resolver.Resolver
	history    HistoryStore
	gatherer   prometheus.Gatherer
	logger     *slog.Logger

	readyTimeout time.Duration
}

type Option func(*Server)

// WithHistory 启用 /api/v1/history
func WithHistory(h HistoryStore) Option {
	return func(s *Server) { s.history = h }
}

// WithGatherer 指定 /metrics 使用的注册表，默认为全局注册表
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func NewServer(addr string, r *resolver.Resolver, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		resolver:     r,
		gatherer:     prometheus.DefaultGatherer,
		logger:       logger,
		readyTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	api := router.Group("/api/v1")
	api.GET("/resolve", s.handleResolve)
	api.GET("/data", s.handleData)
	api.GET("/catalog", s.handleCatalog)
	api.GET("/history", s.handleHistory)

	router.GET("/healthz", s.handleHealthz)
	router.GET("/readyz", s.handleReadyz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.router = router
	// 数据流没有写超时：大文件的传输时间不可预估
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start 开始监听，优雅关闭时返回 http.ErrServerClosed
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown 在 ctx 截止前排空连接
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP 直接交给路由，方便测试
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelWarn
		case c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics":
			level = slog.LevelDebug
		}
		logger.Log(c.Request.Context(), level, "HTTP Request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("dur", time.Since(start)),
		)
	}
}
