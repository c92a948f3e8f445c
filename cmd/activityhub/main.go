package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activityhub/internal/infra/config"
	"activityhub/internal/infra/grpcserver"
	ginserver "activityhub/internal/infra/http/gin"
	"activityhub/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev", "info")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if err := app.loadFixtures(ctx, cfg.FixturesPath); err != nil {
		logger.Warn("fixtures load failed", "error", err, "path", cfg.FixturesPath)
	}
	app.startBackground(ctx)

	health := grpcserver.New(app.health, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err, "addr", cfg.GRPCAddr)
		os.Exit(1)
	}
	go health.Watch(ctx, 5*time.Second)
	go func() {
		logger.Info("grpc health server starting", "addr", cfg.GRPCAddr)
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc server failed", "error", err)
		}
	}()

	server := ginserver.NewServer(ginserver.Options{Env: cfg.Env, Addr: cfg.HTTPAddr}, obs.Middleware{Logger: logger, Metrics: app.metrics}, app.health, app.handlers)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		health.GracefulStop()
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	app.wait()
	logger.Info("HTTP server stopped")
}
