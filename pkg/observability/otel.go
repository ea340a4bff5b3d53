// Package observability は OpenTelemetry のメータとトレーサを初期化します。
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/takumi-1234/postsearch/internal/config"
)

const meterName = "github.com/takumi-1234/postsearch"

// Provider は OpenTelemetry のメータ・トレーサプロバイダを保持します。
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	registry       *prometheus.Registry
}

// Setup はメータおよびトレーサを初期化し、グローバルプロバイダとして登録します。
// TracingEndpoint が空の場合、スパンはエクスポートされません。
func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("service name must not be empty")
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheus.NewRegistry()

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if strings.TrimSpace(cfg.TracingEndpoint) != "" {
		traceExporter, err := newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))
	}
	traceProvider := sdktrace.NewTracerProvider(traceOpts...)

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(traceProvider)

	return &Provider{
		meterProvider:  meterProvider,
		tracerProvider: traceProvider,
		registry:       registry,
	}, nil
}

// Meter はサービス用のメータを返します。
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(meterName)
	}
	return p.meterProvider.Meter(meterName)
}

// MetricsHandler は Prometheus 形式でメトリクスを公開する HTTP ハンドラを返します。
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil || p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown はメータープロバイダおよびトレーサープロバイダを停止します。
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errList []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errList = append(errList, err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errList = append(errList, err)
		}
	}

	return errors.Join(errList...)
}

func newTraceExporter(ctx context.Context, cfg config.ObservabilityConfig) (*otlptrace.Exporter, error) {
	opts, err := traceOptions(cfg)
	if err != nil {
		return nil, err
	}
	return otlptracehttp.New(ctx, opts...)
}

// traceOptions は "host:port" と "http(s)://host:port/path" のどちらの形式も受け付けます。
func traceOptions(cfg config.ObservabilityConfig) ([]otlptracehttp.Option, error) {
	endpoint := strings.TrimSpace(cfg.TracingEndpoint)
	var opts []otlptracehttp.Option
	var urlPath string
	insecure := cfg.TracingInsecure

	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid tracing endpoint %q: %w", endpoint, err)
		}
		if host := parsed.Host; host != "" {
			endpoint = host
		}
		if path := strings.TrimSpace(parsed.Path); path != "" && path != "/" {
			urlPath = path
		}
		if parsed.Scheme == "http" {
			insecure = true
		}
	}

	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	if urlPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(urlPath))
	}
	return opts, nil
}
