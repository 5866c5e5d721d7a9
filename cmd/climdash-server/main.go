package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"climdash/pkg/app"
	"climdash/pkg/config"
	"climdash/pkg/httpapi"
	"climdash/pkg/observability"
	"climdash/pkg/server"
	"climdash/pkg/service"
)

const (
	readinessInterval = 15 * time.Second
	pruneInterval     = 6 * time.Hour
)

func main() {
	cfgFile := flag.String("config", "", "config file (default is ./config.yaml, .climdash/config.yaml or $HOME/.climdash/config.yaml)")
	flag.Parse()

	if err := run(*cfgFile); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	// 1. Load Config
	used, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	s, err := config.Decode()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(s.Log.Level, s.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	if used != "" {
		logger.Info("config loaded", "file", used)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	application, err := app.New(ctx, s, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()
	logger.Info("climdash core initialized", "backends", len(application.Backends), "cache", s.Cache.Type, "audit", s.Audit.Enabled)

	if err := application.StartWatchers(ctx); err != nil {
		return err
	}
	if application.Audit != nil && s.Audit.Retention > 0 {
		go pruneLoop(ctx, application, s.Audit.Retention, logger)
	}

	// 3. Setup Network
	lis, err := net.Listen("tcp", s.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Server.GRPCAddr, err)
	}

	// 4. Setup gRPC Server
	grpcServer, health := server.NewGRPCServer(logger, service.NewResolverService(application.Resolver, logger))
	go server.WatchReadiness(ctx, health, application.Resolver, readinessInterval, logger)

	// 5. Setup HTTP Server
	var httpOpts []httpapi.Option
	if application.Audit != nil {
		httpOpts = append(httpOpts, httpapi.WithHistory(application.Audit))
	}
	httpServer := httpapi.NewServer(s.Server.HTTPAddr, application.Resolver, logger, httpOpts...)

	// 6. Start Servers (Async)
	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", s.Server.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. Graceful Shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server stopped unexpectedly", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		// 流式下载可能一直不结束
		grpcServer.Stop()
	}

	logger.Info("server stopped")
	return nil
}

// pruneLoop 定期删除超过保留期的审计记录
func pruneLoop(ctx context.Context, a *app.App, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := a.Audit.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("audit prune failed", "error", err)
		} else if n > 0 {
			logger.Info("audit records pruned", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
