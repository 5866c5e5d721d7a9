// Package server 组装 gRPC 服务端：拦截器、健康检查与反射
package server

import (
	"context"
	"log/slog"
	"time"

	climdashrpc "climdash/pkg/api/climdashrpc/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ReadinessChecker 由解析器实现
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// NewGRPCServer 创建注册好 ResolverService 的 gRPC 服务端
// logging 在最外层：recovery 把 panic 转成 Internal 之后同样会被记录。
func NewGRPCServer(logger *slog.Logger, svc climdashrpc.ResolverServiceServer) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			UnaryLoggingInterceptor(logger),
			UnaryRecoveryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(logger),
			StreamRecoveryInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	climdashrpc.RegisterResolverServiceServer(s, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(climdashrpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// grpcurl 调试用
	reflection.Register(s)

	return s, hs
}

// WatchReadiness 定期检查后端并更新健康状态，直到 ctx 结束
func WatchReadiness(ctx context.Context, hs *health.Server, rc ReadinessChecker, interval time.Duration, logger *slog.Logger) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if err := rc.CheckReadiness(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.WarnContext(ctx, "resolver not ready", "error", err)
		}
		hs.SetServingStatus(climdashrpc.ServiceName, st)
		hs.SetServingStatus("", st)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
