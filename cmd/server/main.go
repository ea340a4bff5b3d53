package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/takumi-1234/postsearch/internal/adapter/http"
	"github.com/takumi-1234/postsearch/internal/config"
	"github.com/takumi-1234/postsearch/internal/logger"
	"github.com/takumi-1234/postsearch/internal/repository"
	"github.com/takumi-1234/postsearch/internal/service"
	"github.com/takumi-1234/postsearch/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zl.Sync()
	}()

	zl.Info("starting post-search...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		zl.Fatal("failed to set up observability", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			zl.Warn("failed to shut down observability", zap.Error(err))
		}
	}()

	engine, err := repository.NewEngine(cfg.Elasticsearch, nil)
	if err != nil {
		zl.Fatal("failed to create search engine client", zap.Error(err))
	}

	registry, err := service.NewRegistry(engine, map[service.ContentType]string{
		service.Twitter:   cfg.Indices.Twitter,
		service.Instagram: cfg.Indices.Instagram,
		service.Facebook:  cfg.Indices.Facebook,
	}, cfg.Search.DefaultSize, zl)
	if err != nil {
		zl.Fatal("failed to build resolvers", zap.Error(err))
	}

	if err := registry.CheckReady(ctx); err != nil {
		zl.Fatal("search engine is not ready", zap.Error(err))
	}
	if cfg.Elasticsearch.VerifyIndices {
		if err := registry.VerifyIndices(ctx); err != nil {
			zl.Fatal("index verification failed", zap.Error(err))
		}
	}

	metricsMW, err := httpadapter.NewMetricsMiddleware(provider.Meter())
	if err != nil {
		zl.Fatal("failed to create metrics middleware", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpadapter.NewServer(registry, zl).Router(provider.MetricsHandler(), metricsMW),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("server terminated", zap.Error(err))
		return
	}
	zl.Info("server gracefully stopped")
}
