// Command harness serves the post search API over an in-memory engine seeded
// with sample posts, for load testing without Elasticsearch.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpadapter "github.com/takumi-1234/postsearch/internal/adapter/http"
	"github.com/takumi-1234/postsearch/internal/port"
	"github.com/takumi-1234/postsearch/internal/repository/inmemory"
	"github.com/takumi-1234/postsearch/internal/service"
)

func main() {
	listenPort := os.Getenv("PERF_HTTP_PORT")
	if listenPort == "" {
		listenPort = "50071"
	}

	engine := inmemory.NewEngine()
	if err := inmemory.SeedSampleData(engine); err != nil {
		log.Fatalf("failed to seed engine: %v", err)
	}

	logger := zap.NewNop()
	registry, err := service.NewRegistry(engine, map[service.ContentType]string{
		service.Twitter:   inmemory.TwitterIndex,
		service.Instagram: inmemory.InstagramIndex,
		service.Facebook:  inmemory.FacebookIndex,
	}, port.DefaultSize, logger)
	if err != nil {
		log.Fatalf("failed to build registry: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + listenPort,
		Handler:           httpadapter.NewServer(registry, logger).Router(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("perf harness HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server terminated: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("perf harness HTTP server stopped")
}
